// Package main is the shoplens service: webcam object detection with
// shopping-search links, served to the browser and the system tray.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/app"
	"github.com/ayusman/shoplens/internal/config"
	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/tray"
)

const (
	// Flags.
	flagAddr        = "addr"
	flagCamera      = "camera"
	flagFPS         = "fps"
	flagModel       = "model"
	flagModelConfig = "model-config"
	flagDataDir     = "data-dir"
	flagWebDir      = "web-dir"
	flagLogLevel    = "log-level"
	flagLogJSON     = "log-json"
	flagNoTray      = "no-tray"
)

func main() {
	cfg := config.Load()

	if err := newCLIApp(cfg, run).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newCLIApp builds the command line. Flag defaults come from cfg; action
// receives cfg with the flags applied.
func newCLIApp(cfg *config.Config, action func(context.Context, *config.Config) error) *cli.App {
	return &cli.App{
		Name:  "shoplens",
		Usage: "point your webcam at things and shop for them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagAddr, Value: cfg.Addr, Usage: "HTTP listen `ADDRESS`"},
			&cli.IntFlag{Name: flagCamera, Value: cfg.CameraID, Usage: "webcam device `ID`"},
			&cli.IntFlag{Name: flagFPS, Value: cfg.CameraFPS, Usage: "capture and stream frame `RATE`"},
			&cli.StringFlag{Name: flagModel, Value: cfg.ModelPath, Usage: "SSD MobileNet COCO frozen graph `FILE`"},
			&cli.StringFlag{Name: flagModelConfig, Value: cfg.ModelConfigPath, Usage: "model text graph `FILE`"},
			&cli.StringFlag{Name: flagDataDir, Value: cfg.DataDir, Usage: "settings database `DIR`"},
			&cli.StringFlag{Name: flagWebDir, Value: cfg.WebDir, Usage: "static web `DIR` (searched for when empty)"},
			&cli.StringFlag{Name: flagLogLevel, Value: cfg.LogLevel, Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: flagLogJSON, Value: cfg.LogJSON, Usage: "log as JSON"},
			&cli.BoolFlag{Name: flagNoTray, Value: !cfg.Tray, Usage: "run without the system tray menu"},
		},
		Action: func(c *cli.Context) error {
			applyFlags(c, cfg)
			return action(c.Context, cfg)
		},
	}
}

// applyFlags copies flag values over the environment-derived config.
func applyFlags(c *cli.Context, cfg *config.Config) {
	cfg.Addr = c.String(flagAddr)
	cfg.CameraID = c.Int(flagCamera)
	cfg.CameraFPS = c.Int(flagFPS)
	cfg.SetDataDir(c.String(flagDataDir))
	if c.IsSet(flagModel) {
		cfg.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagModelConfig) {
		cfg.ModelConfigPath = c.String(flagModelConfig)
	}
	cfg.WebDir = c.String(flagWebDir)
	cfg.LogLevel = c.String(flagLogLevel)
	cfg.LogJSON = c.Bool(flagLogJSON)
	cfg.Tray = !c.Bool(flagNoTray)

	if cfg.WebDir == "" {
		cfg.WebDir = findWebDir(cfg.DataDir)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	logger.Infof("ShopLens - webcam object search")
	if cfg.WebDir != "" {
		logger.Infof("Serving static files from: %s", cfg.WebDir)
	}

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Errorf("Shutdown: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Tray {
		return a.Run(ctx)
	}

	return runWithTray(ctx, stop, a, cfg, logger)
}

// runWithTray serves HTTP in the background and runs the tray on this
// goroutine, which some platforms require.
func runWithTray(ctx context.Context, stop context.CancelFunc, a *app.App, cfg *config.Config, logger *zap.SugaredLogger) error {
	t := tray.New()
	unsubscribe := a.Controller().Subscribe(t.Update)
	defer unsubscribe()

	t.OnToggle(func() {
		if err := a.Controller().Toggle(ctx); err != nil {
			logger.Warnf("Tray toggle: %v", err)
		}
	})
	t.OnOpen(func() {
		url := browserURL(cfg.Addr)
		if err := openBrowser(url); err != nil {
			logger.Warnf("Could not open %s: %v", url, err)
		}
	})
	t.OnQuit(stop)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		t.Quit()
	}()

	t.Run()
	stop()
	return <-errCh
}

// browserURL turns a listen address into a URL a local browser can open.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	host := strings.TrimPrefix(addr, "0.0.0.0")
	if strings.HasPrefix(host, ":") {
		return "http://localhost" + host
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
