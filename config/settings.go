package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/onnwee/lurker/crypto"
)

// Toggles selects which chat events reach the operator log.
type Toggles struct {
	Chat             bool `json:"chat"`
	Mentions         bool `json:"mentions"`
	Subs             bool `json:"subs"`
	Resubs           bool `json:"resubs"`
	SubGifts         bool `json:"subgifts"`
	RandomSubGifts   bool `json:"randomsubgifts"`
	ReceivedSubGifts bool `json:"receivedsubgifts"`
	Joins            bool `json:"joins"`
}

// ToggleNames lists the toggles in display order.
var ToggleNames = []string{"chat", "mentions", "subs", "resubs", "subgifts", "randomsubgifts", "receivedsubgifts", "joins"}

// Field returns a pointer to the toggle called name, or nil.
func (t *Toggles) Field(name string) *bool {
	switch name {
	case "chat":
		return &t.Chat
	case "mentions":
		return &t.Mentions
	case "subs":
		return &t.Subs
	case "resubs":
		return &t.Resubs
	case "subgifts":
		return &t.SubGifts
	case "randomsubgifts":
		return &t.RandomSubGifts
	case "receivedsubgifts":
		return &t.ReceivedSubGifts
	case "joins":
		return &t.Joins
	}
	return nil
}

// Settings is the content of the settings file.
type Settings struct {
	ClientID     string  `json:"clientId"`
	ClientSecret string  `json:"clientSecret,omitempty"`
	Token        string  `json:"token" validate:"required"`
	UserName     string  `json:"userName" validate:"required"`
	Prefix       string  `json:"prefix" validate:"required"`
	Log          Toggles `json:"log"`
}

// Validate checks that the fields needed to connect are present.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", describe(err))
	}
	return nil
}

// SettingsStore reads and writes the settings file. With a Box, the token and
// client secret are sealed on disk.
type SettingsStore struct {
	Path string
	Box  *crypto.Box
}

// Load reads the settings file. A missing file yields zero Settings.
func (st *SettingsStore) Load() (Settings, error) {
	var s Settings
	data, err := os.ReadFile(st.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode settings %s: %w", st.Path, err)
	}
	if s.Token, err = st.Box.Open(s.Token); err != nil {
		return s, fmt.Errorf("settings token: %w", err)
	}
	if s.ClientSecret, err = st.Box.Open(s.ClientSecret); err != nil {
		return s, fmt.Errorf("settings client secret: %w", err)
	}
	return s, nil
}

// Save overwrites the settings file atomically.
func (st *SettingsStore) Save(s Settings) error {
	var err error
	if s.Token, err = st.Box.Seal(s.Token); err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	if s.ClientSecret, err = st.Box.Seal(s.ClientSecret); err != nil {
		return fmt.Errorf("seal client secret: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFileAtomic(st.Path, append(data, '\n'))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // fails harmlessly after rename
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Overlay saves only the log toggles on top of the settings read from disk, so
// environment overrides never end up in the file.
type Overlay struct {
	Store *SettingsStore
	Base  Settings
}

func (o Overlay) Save(s Settings) error {
	out := o.Base
	out.Log = s.Log
	return o.Store.Save(out)
}
