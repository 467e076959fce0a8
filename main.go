// Command lurker keeps a Twitch account present in many chat rooms at once.
// It:
//   - Loads configuration and the settings file, and initializes structured
//     logging, metrics and tracing.
//   - Loads the persisted channel list (JSON file or database) and grows it
//     from the live-stream feed before connecting.
//   - Connects to Twitch chat and, on every connect, joins the channels one
//     at a time; a disconnect stops the running join sequence.
//   - Relays selected chat events to the operator log (and NATS, if
//     configured) and handles the owner's toggle commands.
//   - Exposes /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/lurker/channels"
	"github.com/onnwee/lurker/chat"
	"github.com/onnwee/lurker/config"
	"github.com/onnwee/lurker/crypto"
	"github.com/onnwee/lurker/db"
	"github.com/onnwee/lurker/discovery"
	"github.com/onnwee/lurker/relay"
	"github.com/onnwee/lurker/server"
	"github.com/onnwee/lurker/session"
	"github.com/onnwee/lurker/telemetry"
	"github.com/onnwee/lurker/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("fatal panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("lurker exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func setupLogging() {
	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	telemetry.Init()
	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdownTracing, err := telemetry.InitTracing("lurker", "1.0.0")
	if err != nil {
		return err
	}
	defer shutdownTracing()

	var box *crypto.Box
	if cfg.EncryptionKey != "" {
		if box, err = crypto.NewBox(cfg.EncryptionKey); err != nil {
			return err
		}
	}
	settingsStore := &config.SettingsStore{Path: cfg.SettingsPath, Box: box}
	fileSettings, err := settingsStore.Load()
	if err != nil {
		return err
	}
	settings := fileSettings
	cfg.ApplyOverrides(&settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, database, err := channelBackend(ctx, cfg)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
	}
	store := channels.NewStore(backend)
	if _, err := store.Load(ctx); err != nil {
		// Start from an empty list; discovery can still bootstrap one.
		slog.Warn("channel list unavailable; starting empty", slog.Any("err", err), slog.String("component", "channels"))
	}

	runDiscovery(ctx, cfg, settings, store)
	telemetry.SetGauge(telemetry.ChannelsKnownGauge, store.Len())
	if ctx.Err() != nil {
		return nil
	}

	client := chat.New(chat.Config{
		Username:       settings.UserName,
		OAuth:          settings.Token,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	manager := session.NewManager()
	scheduler := &session.Scheduler{Joiner: client, Epochs: manager, Delay: cfg.JoinDelay}
	lifecycle := &session.Lifecycle{Manager: manager, Scheduler: scheduler, Channels: store}

	commands := relay.NewCommands(settings, config.Overlay{Store: settingsStore, Base: fileSettings}, client, store)
	sinks := []relay.Sink{relay.LogSink{}}
	if cfg.NATSURL != "" {
		nc, err := relay.ConnectNATS(cfg.NATSURL)
		if err != nil {
			slog.Warn("nats unavailable; relaying to log only", slog.Any("err", err), slog.String("component", "relay"))
		} else {
			defer nc.Drain() //nolint:errcheck // best effort on shutdown
			sinks = append(sinks, &relay.NATSSink{Conn: nc, Prefix: cfg.NATSSubjectPrefix})
		}
	}
	router := relay.NewRouter(commands, sinks...)

	client.OnConnected(guard("connected", func() { lifecycle.HandleConnected(ctx) }))
	client.OnDisconnected(func(err error) { guard("disconnected", func() { lifecycle.HandleDisconnected(err) })() })
	client.OnMessage(func(m chat.Message) { guard("message", func() { router.HandleMessage(m) })() })
	client.OnSub(func(ev chat.SubEvent) { guard("sub", func() { router.HandleSub(ev) })() })
	client.OnSelfJoin(func(ch string) { guard("join", func() { router.HandleSelfJoin(ch) })() })
	client.OnJoinError(func(ch string, err error) {
		telemetry.Inc(telemetry.JoinErrors)
		slog.Warn("join rejected", slog.String("channel", ch), slog.Any("err", err), slog.String("component", "chat"))
	})

	if cfg.HTTPAddr != "" {
		handler := server.NewRouter(server.Deps{
			Sessions: manager,
			Joined:   scheduler,
			Channels: store,
			Toggles:  commands,
			DB:       database,
		})
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, handler); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	manager.Connecting()
	runErr := client.Run(ctx)
	stop()
	lifecycle.Wait()
	slog.Info("shutting down")
	if errors.Is(runErr, chat.ErrFatal) {
		return runErr
	}
	return nil
}

// channelBackend selects file or database storage for the channel list.
func channelBackend(ctx context.Context, cfg *config.Config) (channels.Backend, *sql.DB, error) {
	if cfg.ChannelStore != "db" {
		return &channels.FileBackend{Path: cfg.ChannelsPath}, nil, nil
	}
	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	return &channels.SQLBackend{DB: database}, database, nil
}

func runDiscovery(ctx context.Context, cfg *config.Config, s config.Settings, store *channels.Store) {
	if !cfg.DiscoveryEnabled {
		slog.Info("discovery disabled", slog.String("component", "discovery"))
		return
	}
	if s.ClientID == "" {
		slog.Warn("discovery skipped: no client id", slog.String("component", "discovery"))
		return
	}
	opts := twitchapi.FeedOptions{ClientID: s.ClientID, UserToken: s.Token, PageDelay: cfg.DiscoveryPageDelay}
	if s.ClientSecret != "" {
		opts.Tokens = &twitchapi.TokenSource{ClientID: s.ClientID, ClientSecret: s.ClientSecret}
	}
	feed, err := twitchapi.NewStreamFeed(opts)
	if err != nil {
		slog.Warn("discovery skipped", slog.Any("err", err), slog.String("component", "discovery"))
		return
	}
	svc := &discovery.Service{Feed: feed, Store: store, Threshold: cfg.DiscoveryThreshold}
	if _, err := svc.Discover(ctx); err != nil {
		// Partial progress is already persisted.
		slog.Warn("discovery incomplete", slog.Any("err", err), slog.Int("channels", store.Len()), slog.String("component", "discovery"))
	}
}

// guard wraps a transport callback so a panic is logged instead of taking
// down the IRC reader.
func guard(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("event handler panic", slog.String("handler", name), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		fn()
	}
}
