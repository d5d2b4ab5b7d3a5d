package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"maunium.net/go/mautrix/id"

	"mxnotify/internal/config"
	"mxnotify/internal/eventbus"
	"mxnotify/internal/notifier"
	"mxnotify/internal/platform"
	"mxnotify/internal/platform/telegram"
	"mxnotify/internal/runtime/supervisor"
	"mxnotify/internal/session"
	"mxnotify/internal/settings"
	"mxnotify/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	mgr.SetLogger(logx.NewConsole("info"))
	mgr.SetValidator(validateConfig)

	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	logSvc, rootLog := logx.New(loggingConfig(cfg.Logging))
	defer logSvc.Close()
	mgr.SetLogger(rootLog.With(logx.String("comp", "config")))

	store, err := settings.Open(settingsConfig(cfg.Settings), rootLog.With(logx.String("comp", "settings")))
	if err != nil {
		return err
	}
	defer store.Close()

	plat, err := buildPlatform(cfg.Platform, rootLog)
	if err != nil {
		return err
	}

	if cfg.Session.UserID == "" {
		return errors.New("session.user_id is required")
	}
	client := session.NewReplayClient(id.UserID(cfg.Session.UserID), rootLog.With(logx.String("comp", "session")))

	ncfg, err := notifierConfig(cfg.Notifier)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	eng := notifier.New(ncfg, client, plat, store, store, bus, rootLog.With(logx.String("comp", "notifier")))

	sup := supervisor.New(ctx,
		supervisor.WithLogger(rootLog.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	eng.Start(sup.Context())
	defer eng.Stop(context.Background())

	sup.Go("bus-log", func(c context.Context) error {
		return logBusEvents(c, bus, rootLog.With(logx.String("comp", "bus")))
	})

	sup.GoRestart("config-watch", mgr.Watch)

	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	sup.Go("config-apply", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				logSvc.Apply(loggingConfig(next.Logging))
				ncfg, err := notifierConfig(next.Notifier)
				if err != nil {
					rootLog.Warn("reload: bad notifier section, keeping previous", logx.Err(err))
					continue
				}
				eng.Apply(ncfg)
				rootLog.Info("configuration reloaded")
			}
		}
	})

	sup.Go("feed", func(c context.Context) error {
		return runFeed(c, client, cfg.Session.Feed)
	})

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		rootLog.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		rootLog.Debug("sd_notify: ready")
	}
	rootLog.Info("mxnotifyd started",
		logx.String("user", cfg.Session.UserID),
		logx.String("backend", backendName(cfg.Platform)),
	)

	<-sup.Context().Done()
	_ = sup.Wait(context.Background())
	if err := sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runFeed streams recorded session signals from the configured file, or
// stdin when none is set.
func runFeed(ctx context.Context, client *session.ReplayClient, feed string) error {
	var r io.Reader = os.Stdin
	if feed != "" {
		f, err := os.Open(feed)
		if err != nil {
			return fmt.Errorf("open feed: %w", err)
		}
		defer f.Close()
		r = f
	}
	// An exhausted feed is not an error; the daemon keeps serving settings
	// and enablement queries until it is signalled.
	if err := client.Run(ctx, r); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	<-ctx.Done()
	return nil
}

func buildPlatform(cfg config.PlatformConfig, log logx.Logger) (platform.Capability, error) {
	switch backendName(cfg) {
	case "log":
		return platform.NewLogBackend(log.With(logx.String("comp", "platform"))), nil
	case "telegram":
		return telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		}, log.With(logx.String("comp", "platform")))
	default:
		return nil, fmt.Errorf("unknown platform backend: %s", cfg.Backend)
	}
}

func backendName(cfg config.PlatformConfig) string {
	if cfg.Backend == "" {
		return "log"
	}
	return cfg.Backend
}

func logBusEvents(ctx context.Context, bus eventbus.Bus, log logx.Logger) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

func loggingConfig(cfg config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   cfg.Level,
		Console: cfg.Console,
		File: logx.FileConfig{
			Enabled: cfg.File.Enabled,
			Path:    cfg.File.Path,
		},
	}
}

func settingsConfig(cfg config.SettingsConfig) settings.Config {
	out := settings.Config{Driver: cfg.Driver, Path: cfg.Path}
	if d, err := cfg.BusyTimeoutDuration(); err == nil {
		out.BusyTimeout = d
	}
	return out
}

func notifierConfig(cfg config.NotifierConfig) (notifier.Config, error) {
	out := notifier.Config{
		SignalBuffer:    cfg.SignalBuffer,
		SoundRatePerSec: cfg.SoundRatePerSec,
		DefaultSoundURL: cfg.DefaultSoundURL,
	}
	for _, qh := range cfg.QuietHours {
		d, err := qh.WindowDuration()
		if err != nil {
			return notifier.Config{}, err
		}
		w, err := notifier.ParseQuietWindow(qh.Start, d)
		if err != nil {
			return notifier.Config{}, err
		}
		out.QuietHours = append(out.QuietHours, w)
	}
	return out, nil
}

func validateConfig(_ context.Context, cfg *config.Config) error {
	if cfg.Session.UserID == "" {
		return errors.New("session.user_id is required")
	}
	if _, err := notifierConfig(cfg.Notifier); err != nil {
		return err
	}
	switch cfg.Platform.Backend {
	case "", "log":
	case "telegram":
		if cfg.Platform.Telegram.Token == "" || cfg.Platform.Telegram.ChatID == 0 {
			return errors.New("platform.telegram requires token and chat_id")
		}
	default:
		return fmt.Errorf("unknown platform backend: %s", cfg.Platform.Backend)
	}
	return nil
}
