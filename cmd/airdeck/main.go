package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/ayusman/airdeck/internal/app"
	"github.com/ayusman/airdeck/internal/capture"
	"github.com/ayusman/airdeck/internal/config"
	"github.com/ayusman/airdeck/internal/deck"
	"github.com/ayusman/airdeck/internal/logging"
	"github.com/ayusman/airdeck/internal/metrics"
	"github.com/ayusman/airdeck/internal/plugin"
	"github.com/ayusman/airdeck/internal/pose"
	"github.com/ayusman/airdeck/internal/server"
	"github.com/ayusman/airdeck/internal/store"
	"github.com/ayusman/airdeck/internal/tray"
	"github.com/ayusman/airdeck/internal/ui"
)

var (
	configPath   = flag.String("config", "", "Config file (default ~/.airdeck/config.json)")
	deckPath     = flag.String("deck", "", "Markdown deck to present, slides separated by ---")
	uiMode       = flag.String("ui", "", "Front end: tui, tray or headless")
	addr         = flag.String("addr", "", "HTTP listen address")
	estimator    = flag.String("estimator", "", "Pose estimator: subprocess, http or mock")
	estimatorURL = flag.String("estimator-url", "", "Pose service URL for the http estimator")
	cameraID     = flag.Int("camera", 0, "Camera device index")
	logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	noGestures   = flag.Bool("no-gestures", false, "Do not start gesture control at launch")
	saveConfig   = flag.Bool("save-config", false, "Write the effective configuration and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "airdeck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := *configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *saveConfig {
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	}

	if err := os.MkdirAll(config.Dir(), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// The terminal UI owns stdout.
	logFile := cfg.Log.File
	if logFile == "" && cfg.UI.Mode == config.UITerminal {
		logFile = filepath.Join(config.Dir(), "airdeck.log")
	}
	if err := logging.Init(cfg.Log.Level, logFile); err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(filepath.Join(config.Dir(), "airdeck.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	d, err := deck.Load(cfg.DeckFile)
	if err != nil {
		return err
	}

	m := metrics.New()

	camera, newEstimator := detectionSources(cfg)
	var gate *capture.MotionGate
	if cfg.Detection.MotionGating {
		gate = capture.NewMotionGate(cfg.Detection.MotionThreshold)
		defer gate.Close()
	}
	ctrl := app.NewController(app.ControllerOptions{
		Camera:       camera,
		NewEstimator: newEstimator,
		Classifier:   cfg.ClassifierConfig(),
		FPS:          cfg.Detection.FPS,
		InitTimeout:  cfg.InitTimeout(),
		MotionGate:   gate,
		Metrics:      m,
	})
	defer ctrl.Close()

	plugins := plugin.NewManager(cfg.PluginDir())
	if err := plugins.Discover(); err != nil {
		logging.Warn("plugin discovery failed", "dir", cfg.PluginDir(), "err", err)
	}
	if n, err := app.SeedBindings(st, cfg.Plugins.Bindings); err != nil {
		logging.Warn("failed to seed plugin bindings", "err", err)
	} else if n > 0 {
		logging.Info("plugin bindings seeded from config", "count", n)
	}
	dispatcher := plugin.NewDispatcher(plugins, plugin.NewExecutor(cfg.PluginTimeout()), app.PluginBindings(st), 16)
	dispatcher.Start(ctx)
	defer dispatcher.Close()

	a := app.New(app.Options{
		Deck:       d,
		DeckName:   deckName(cfg.DeckFile),
		Controller: ctrl,
		Store:      st,
		Plugins:    dispatcher,
		Metrics:    m,
	})
	if err := a.Open(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer a.Close()
	a.OnExit(stop)

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	srv := server.New(server.Config{
		StaticDir: staticDir,
		App:       a,
		Store:     st,
		Plugins:   plugins,
		Metrics:   m,
	})
	go func() {
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("http server failed", "err", err)
			stop()
		}
	}()

	if cfg.Detection.AutoStart {
		go func() {
			if err := a.StartGestures(ctx); err != nil && !errors.Is(err, app.ErrStopped) {
				logging.Warn("gesture control not started", "err", err)
			}
		}()
	}

	logging.Info("airdeck ready", "ui", cfg.UI.Mode, "addr", cfg.Server.Addr, "slides", d.SlideCount())

	switch cfg.UI.Mode {
	case config.UITray:
		runTray(ctx, stop, a, "http://"+cfg.Server.Addr)
	case config.UITerminal:
		if err := ui.Run(a); err != nil {
			return err
		}
	default:
		<-ctx.Done()
	}

	stop()
	logging.Info("shutting down")
	return nil
}

func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "deck":
			cfg.DeckFile = *deckPath
		case "ui":
			cfg.UI.Mode = *uiMode
		case "addr":
			cfg.Server.Addr = *addr
		case "estimator":
			cfg.Estimator.Kind = *estimator
		case "estimator-url":
			cfg.Estimator.URL = *estimatorURL
		case "camera":
			cfg.Camera.Device = *cameraID
		case "log-level":
			cfg.Log.Level = *logLevel
		case "no-gestures":
			cfg.Detection.AutoStart = !*noGestures
		}
	})
}

// detectionSources builds the camera and estimator factory for the
// configured estimator kind. The mock kind needs no camera or model.
func detectionSources(cfg *config.Config) (capture.Camera, func() (pose.Estimator, error)) {
	switch cfg.Estimator.Kind {
	case config.EstimatorMock:
		return capture.NewMockCamera(nil, true), func() (pose.Estimator, error) {
			return pose.NewMockEstimator(), nil
		}
	}

	camera := capture.NewCamera(capture.Options{
		DeviceID: cfg.Camera.Device,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
		FPS:      cfg.Detection.FPS,
	})

	est := cfg.Estimator
	if est.Kind == config.EstimatorHTTP {
		return camera, func() (pose.Estimator, error) {
			return pose.NewHTTPEstimator(est.URL, nil), nil
		}
	}
	return camera, func() (pose.Estimator, error) {
		return pose.NewSubprocessEstimator(pose.SubprocessOptions{Python: est.Python, Script: est.Script}), nil
	}
}

func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, url string) {
	t := tray.New()
	t.OnToggle(func() {
		if _, err := a.ToggleGestures(ctx); err != nil {
			logging.Warn("gesture toggle failed", "err", err)
		}
	})
	t.OnNavigate(
		func() { a.Next(app.SourceTray) },
		func() { a.Previous(app.SourceTray) },
	)
	t.OnOpen(func() {
		if err := openBrowser(url); err != nil {
			logging.Warn("failed to open browser", "url", url, "err", err)
		}
	})
	t.OnQuit(stop)

	a.OnChange(func() { t.Update(a.Snapshot()) })
	t.Update(a.Snapshot())

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

func deckName(path string) string {
	if path == "" {
		return "demo"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// findWebDir searches for the presenter page in common locations: "web",
// "../web", "../../web", and ~/.airdeck/web.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.Dir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
