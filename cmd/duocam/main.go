package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-zeromq/zmq4"

	"github.com/mkeller/duocam/internal/config"
	"github.com/mkeller/duocam/internal/debug"
	"github.com/mkeller/duocam/internal/hw/camdrv"
	"github.com/mkeller/duocam/internal/logic/batch"
	"github.com/mkeller/duocam/internal/logic/pair"
	"github.com/mkeller/duocam/internal/serve"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	serveMode := flag.Bool("serve", false, "run the request/reply server; default runs the batch harness")
	count := flag.Int("count", 0, "override batch iteration count")
	bind := flag.String("bind", "", "override server bind address (e.g. tcp://*:5555)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	applyOverrides(cfg, *count, *bind)

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Driver type", cfg.Driver.Type)

	// Initialize camera driver
	debug.Step(1, "Initializing camera driver")
	drv, err := camdrv.New(cfg.Driver.Type)
	if err != nil {
		log.Fatalf("init camera driver failed: %v", err)
	}

	// Initialize the device pair
	debug.Step(2, "Initializing camera pair")
	ctrl := pair.New(drv, pairConfig(cfg))
	if err := ctrl.Initialize(ctx); err != nil {
		// Release whatever was opened before the failure.
		if cerr := ctrl.Close(); cerr != nil {
			log.Printf("release cameras after failed init: %v", cerr)
		}
		log.Fatalf("initialize cameras failed: %v", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Printf("release cameras: %v", err)
		}
	}()

	if *serveMode {
		debug.Step(3, "Starting request server")
		sock := zmq4.NewRep(ctx)
		defer sock.Close()
		if err := sock.Listen(cfg.Server.Bind); err != nil {
			log.Printf("bind %s failed: %v", cfg.Server.Bind, err)
			closeAndExit(ctrl)
		}
		debug.Info("Serving on %s (envelope=%v)", cfg.Server.Bind, cfg.Server.Envelope)

		srv := serve.New(sock, ctrl.CaptureNext, serve.Options{Envelope: cfg.Server.Envelope})
		if err := srv.Run(ctx); err != nil {
			log.Printf("server failed: %v", err)
			closeAndExit(ctrl)
		}
		return
	}

	debug.Step(3, "Running batch harness")
	if err := batch.Run(ctx, ctrl, cfg.Defaults.BatchCount); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("batch capture failed: %v", err)
		closeAndExit(ctrl)
	}
}

// closeAndExit releases the pair before a non-zero exit, since log.Fatalf
// and os.Exit skip deferred Close.
func closeAndExit(ctrl *pair.Controller) {
	if err := ctrl.Close(); err != nil {
		log.Printf("release cameras: %v", err)
	}
	os.Exit(1)
}

// applyOverrides mutates cfg with CLI overrides. Zero values mean "use config".
func applyOverrides(cfg *config.Config, count int, bind string) {
	if count > 0 {
		cfg.Defaults.BatchCount = count
	}
	if bind != "" {
		cfg.Server.Bind = bind
	}
}

// pairConfig maps the file configuration onto the controller's config.
func pairConfig(cfg *config.Config) pair.Config {
	// Load already validated the policy spelling.
	policy, _ := pair.ParseEncodePolicy(cfg.Capture.EncodePolicy)

	pc := pair.Config{
		ImageDir:       cfg.Capture.ImageDir,
		Width:          cfg.Capture.WidthPx,
		Height:         cfg.Capture.HeightPx,
		BitsPerPixel:   cfg.Capture.BitsPerPixel,
		PixelFormat:    cfg.Capture.PixelFormat,
		JPEGQuality:    cfg.Capture.JPEGQuality,
		ReplyWidth:     cfg.Capture.ReplyWidthPx,
		ReplyHeight:    cfg.Capture.ReplyHeightPx,
		FreezeAttempts: cfg.Capture.FreezeAttempts,
		FreezeBackoff:  cfg.FreezeBackoff(),
		EncodePolicy:   policy,
	}
	if cfg.AOI != nil {
		pc.AOI = &camdrv.Rect{
			X:      cfg.AOI.XPx,
			Y:      cfg.AOI.YPx,
			Width:  cfg.AOI.WidthPx,
			Height: cfg.AOI.HeightPx,
		}
	}
	return pc
}
