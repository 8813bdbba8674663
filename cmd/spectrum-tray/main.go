package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/petems/spectrum-tray/internal/app"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/petems/spectrum-tray/internal/export"
	"github.com/petems/spectrum-tray/internal/logging"
	"github.com/petems/spectrum-tray/internal/natspub"
	"github.com/petems/spectrum-tray/internal/permissions"
	"github.com/petems/spectrum-tray/internal/poller"
	"github.com/petems/spectrum-tray/internal/tray"
	"github.com/petems/spectrum-tray/internal/web"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to the JSON config file")
	listDevices := flag.Bool("list-devices", false, "print input devices and exit")
	headless := flag.Bool("headless", false, "run without the system tray")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.NewWithLevel(cfg.LogLevel)

	backend, err := audio.NewPortAudio()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer backend.Close()

	if *listDevices {
		if err := printDevices(os.Stdout, backend); err != nil {
			log.Error().Err(err).Msg("Failed to list devices")
		}
		return
	}

	// Loopback devices need no approval, so a missing microphone grant is not fatal.
	if err := permissions.EnsurePermissions(log); err != nil {
		log.Warn().Err(err).Msg("Microphone capture may be unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(app.Config{
		Backend: backend,
		Config:  cfg,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create app")
	}

	frames := poller.New(application, cfg.PollInterval.Std(), log)

	if cfg.NATS.Enabled {
		conn, err := natspub.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			log.Error().Err(err).Msg("NATS publishing disabled")
		} else {
			pub := natspub.NewPublisher(conn, cfg.NATS.SubjectPrefix, log)
			defer pub.Close()
			frames.AddSink(pub)
		}
	}

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web.Addr, application, log)
		frames.AddSink(srv)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Web server error")
			}
		}()
	}

	go frames.Run(ctx)

	log.Info().Str("version", Version).Msg("spectrum-tray starting...")

	if *headless {
		autostart(ctx, application, cfg)
		<-ctx.Done()
	} else {
		trayUI := tray.New(tray.Config{
			App:      application,
			Exporter: export.New(export.FormatText),
			Version:  Version,
			Commit:   Commit,
			Logger:   log,
			OnQuit:   stop,
		})
		application.SetStatusUpdater(trayUI)
		frames.AddSink(trayUI)
		autostart(ctx, application, cfg)

		// Start tray UI - MUST run on main thread
		if err := trayUI.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Tray error")
		}
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

func autostart(ctx context.Context, application *app.App, cfg *config.Config) {
	if !cfg.Autostart {
		return
	}
	// Start logs its own failure and leaves the app idle.
	_ = application.Start(ctx)
}

func printDevices(w io.Writer, b audio.Backend) error {
	devices, err := audio.ListInputDevices(b)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tCHANNELS\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", d.Index, d.Name, d.InputChannels, def)
	}
	return tw.Flush()
}
