package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/auth"
	"smartfarm-go-panel/internal/farm"
	"smartfarm-go-panel/internal/mqtt"
	"smartfarm-go-panel/internal/poll"
	"smartfarm-go-panel/internal/storage"
	"smartfarm-go-panel/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Backend struct {
		URL         string `yaml:"url"`
		ProxyPrefix string `yaml:"proxy_prefix"`
	} `yaml:"backend"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT mqtt.Config `yaml:"mqtt"`
	Log  struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	return nil
}

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "farm-panel",
		Short: "Smart farm control panel",
		Long:  "State-sync panel for the smart farm backend: web API, dashboard polling, MQTT mirroring and a small operations CLI.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the panel server",
		RunE:  runServer,
	}

	loginCmd = &cobra.Command{
		Use:   "login <username> <password>",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(2),
		RunE:  runLogin,
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE:  runLogout,
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List registered devices",
		RunE:  runDevices,
	}

	controlCmd = &cobra.Command{
		Use:   "control <device-id> <component> <ON|OFF>",
		Short: "Send a manual actuator command",
		Args:  cobra.ExactArgs(3),
		RunE:  runControl,
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Reset every device to its preset (or all-off) state",
		RunE:  runReset,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("farm-panel " + version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd, loginCmd, logoutCmd, devicesCmd, controlCmd, resetCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "farm-panel.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "smartfarm"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// tokenFunc adapts a closure to api.TokenSource, breaking the
// client <-> auth manager construction cycle.
type tokenFunc func() string

func (f tokenFunc) Token() string { return f() }

// panel is the wired domain layer shared by every command.
type panel struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.BoltStore
	auth    *auth.Manager
	devices *farm.DeviceService
	presets *farm.PresetService
	logs    *farm.LogService
	gallery *farm.GalleryService
}

func newPanel(cfg *Config, logger *slog.Logger) (*panel, error) {
	store, err := storage.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var mgr *auth.Manager
	clientOpts := []api.ClientOption{
		api.WithTokenSource(tokenFunc(func() string {
			if mgr == nil {
				return ""
			}
			return mgr.Token()
		})),
	}
	if cfg.Backend.ProxyPrefix != "" {
		clientOpts = append(clientOpts, api.WithProxyPrefix(cfg.Backend.ProxyPrefix))
	}
	client := api.NewClient(cfg.Backend.URL, logger, clientOpts...)
	mgr = auth.NewManager(client, store, storage.NewMemStore(), logger)

	return &panel{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		auth:    mgr,
		devices: farm.NewDeviceService(client, store, mgr, logger),
		presets: farm.NewPresetService(client, store, logger),
		logs:    farm.NewLogService(client, logger),
		gallery: farm.NewGalleryService(client, cfg.Backend.URL, logger),
	}, nil
}

func (p *panel) Close() {
	if err := p.store.Close(); err != nil {
		p.logger.Warn("close store", "err", err)
	}
}

// setup loads config, builds the logger and wires the panel. Shared
// preamble of every command.
func setup() (*panel, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	return newPanel(cfg, logger)
}

func runServer(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	cfg, logger := p.cfg, p.logger
	logger.Info("farm-panel starting", "version", version, "backend", cfg.Backend.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The update hook fans controller results out to WebSocket clients
	// and MQTT. Both targets are wired after the dashboard exists, so
	// the closure reads them indirectly.
	var (
		server    *web.Server
		publisher *mqtt.Publisher
		dash      *poll.Dashboard
	)
	hook := func() {
		if server != nil {
			server.Hub().Notify("dashboard")
		}
		if publisher != nil {
			publishSelected(publisher, dash)
		}
	}

	dash = poll.NewDashboard(p.devices, poll.RealClock{}, logger, poll.WithUpdateHook(hook))

	webOpts := []web.ServerOption{web.WithBaseContext(ctx)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	server = web.NewServer(web.Services{
		Auth:      p.auth,
		Devices:   p.devices,
		Presets:   p.presets,
		Logs:      p.logs,
		Gallery:   p.gallery,
		Dashboard: dash,
	}, logger, webOpts...)

	if cfg.MQTT.Enabled() {
		publisher, err = mqtt.NewPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("mqtt connect", "err", err)
			// The panel is useful without the mirror; keep going.
		}
	}

	dash.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	server.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	cancel()

	logger.Info("goodbye")
	return nil
}

// publishSelected mirrors the focused device's state to MQTT.
func publishSelected(publisher *mqtt.Publisher, dash *poll.Dashboard) {
	id := dash.Selected()
	if id == 0 {
		publisher.PublishDevices(dash.Devices().Data)
		return
	}
	name := strconv.Itoa(id)
	for _, d := range dash.Devices().Data {
		if d.DeviceID == id {
			name = d.DeviceName
			break
		}
	}
	publisher.PublishSensors(name, dash.Sensors().Data)
	publisher.PublishStatus(name, dash.Status().Data)
}

func runLogin(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	user, err := p.auth.SignIn(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	fmt.Printf("signed in as %s (id %d)\n", user.Username, user.ID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	p.auth.Logout(ctx)
	fmt.Println("session cleared")
	return nil
}

func runDevices(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	devices, err := p.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		status := "offline"
		if d.LastActive != nil && *d.LastActive != "" {
			status = "online"
		}
		fmt.Printf("%-6d %-24s %-10s %s\n", d.DeviceID, d.DeviceName, d.DeviceType, status)
	}
	return nil
}

func runControl(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	component := strings.ToUpper(args[1])
	command := strings.ToUpper(args[2])
	if command != api.CommandOn && command != api.CommandOff {
		return fmt.Errorf("command must be ON or OFF, got %q", args[2])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := p.devices.Control(ctx, id, component, command); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	fmt.Printf("device %d: %s %s\n", id, component, command)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	p, err := setup()
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	devices, err := p.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	poll.Reset(ctx, devices, p.devices, p.logger)
	fmt.Printf("reset %d device(s)\n", len(devices))
	return nil
}
