package channels

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/onnwee/lurker/testutil"
)

type memBackend struct {
	names   []string
	loadErr error
	saveErr error
	saves   int
}

func (m *memBackend) Load(context.Context) ([]string, error) { return m.names, m.loadErr }

func (m *memBackend) Save(_ context.Context, names []string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.names = append([]string(nil), names...)
	return nil
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"foo_bar1", true},
		{"alice", true},
		{"UPPER_ok", true},
		{"foo!bar", false},
		{"with space", false},
		{"dash-name", false},
		{"ünïcode", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.name); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		display string
		want    string
		valid   bool
	}{
		{"Test_User", "test_user", true},
		{"  Test_User ", "  test_user ", false},
		{"Ünïcode", "ünïcode", false},
	}
	for _, tt := range tests {
		got := Normalize(tt.display)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.display, got, tt.want)
		}
		if IsValid(got) != tt.valid {
			t.Errorf("IsValid(Normalize(%q)) = %v, want %v", tt.display, !tt.valid, tt.valid)
		}
	}
}

func TestStoreAppendIsIdempotent(t *testing.T) {
	s := NewStore(&memBackend{})
	if !s.Append("alice") {
		t.Fatal("first append should add")
	}
	if s.Append("alice") {
		t.Error("second append of same id should be a no-op")
	}
	if s.Append("bad!name") {
		t.Error("invalid id should not be appended")
	}
	s.Append("bob")
	if got, want := s.List(), []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
	if !s.Contains("bob") || s.Contains("carol") {
		t.Error("Contains() mismatch")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStoreListIsSnapshot(t *testing.T) {
	s := NewStore(&memBackend{})
	s.Append("alice")
	list := s.List()
	list[0] = "mutated"
	if s.List()[0] != "alice" {
		t.Error("List() must return a copy")
	}
}

func TestStoreLoadDropsInvalidAndDuplicates(t *testing.T) {
	b := &memBackend{names: []string{"alice", "Alice", "bob", "no-dash", "", "carol"}}
	s := NewStore(b)
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := []string{"alice", "bob", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
}

func TestStoreLoadUnavailable(t *testing.T) {
	s := NewStore(&memBackend{names: []string{"alice"}, loadErr: errors.New("disk gone")})
	s.Append("stale")
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Load() error = %v, want ErrStorageUnavailable", err)
	}
	if s.Len() != 0 {
		t.Errorf("store should be empty after failed load, got %v", s.List())
	}
	if !s.Append("fresh") {
		t.Error("store must stay usable after failed load")
	}
}

func TestStorePersistWriteError(t *testing.T) {
	s := NewStore(&memBackend{saveErr: errors.New("read-only fs")})
	s.Append("alice")
	err := s.Persist(context.Background())
	if !errors.Is(err, ErrStorageWrite) {
		t.Fatalf("Persist() error = %v, want ErrStorageWrite", err)
	}
	if !s.Contains("alice") {
		t.Error("in-memory list must survive a failed persist")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	b := &FileBackend{Path: path}
	ctx := context.Background()

	names, err := b.Load(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("Load() on missing file = %v, %v; want empty, nil", names, err)
	}
	if err := b.Save(ctx, []string{"alice", "bob"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(raw) != `["alice","bob"]` {
		t.Errorf("file contents = %s", raw)
	}
	names, err = b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"alice", "bob"}) {
		t.Errorf("Load() = %v", names)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only channels.json in dir, found %d entries", len(entries))
	}
}

func TestFileBackendSaveEmptyWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	b := &FileBackend{Path: path}
	if err := b.Save(context.Background(), nil); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != `[]` {
		t.Errorf("file contents = %s, want []", raw)
	}
}

func TestFileBackendCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(&FileBackend{Path: path})
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Load() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestSQLBackendPreservesOrder(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := NewStore(&SQLBackend{DB: database})
	for _, n := range []string{"zed", "alice", "mike"} {
		s.Append(n)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}
	s.Append("bob")
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("second Persist() error: %v", err)
	}

	reloaded := NewStore(&SQLBackend{DB: database})
	got, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if want := []string{"zed", "alice", "mike", "bob"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %v, want %v", got, want)
	}
}
