package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/halyard/internal/api"
	"grimm.is/halyard/internal/brand"
	"grimm.is/halyard/internal/config"
	"grimm.is/halyard/internal/health"
	"grimm.is/halyard/internal/inventory"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/profile"
	"grimm.is/halyard/internal/state"
)

// statsInterval is how often interface counters are sampled into /metrics.
const statsInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the network settings API daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunServe(cmd.Context(), configFile)
	},
}

// RunServe loads the configuration and runs the daemon until ctx is done.
func RunServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	logging.SetDefault(logger)

	for _, w := range cfg.Validate().Warnings() {
		logger.Warn("configuration warning", "field", w.Field, "message", w.Message)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	d, err := newDaemon(ctx, cfg, backend, logger)
	if err != nil {
		if c, ok := backend.(io.Closer); ok {
			c.Close()
		}
		return err
	}
	defer d.Close()

	logger.Info("starting", "version", brand.Version, "listen", cfg.Listen, "backend", cfg.Backend)
	return d.Run(ctx)
}

// newLogger builds the daemon logger. When a syslog block is configured the
// log is written to both out and the syslog server.
func newLogger(cfg *config.Config, out io.Writer) (*logging.Logger, func(), error) {
	lc := logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: out,
		JSON:   cfg.LogJSON,
	}
	closeFn := func() {}
	if cfg.Syslog != nil {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Host:     cfg.Syslog.Host,
			Port:     cfg.Syslog.Port,
			Protocol: cfg.Syslog.Protocol,
			Tag:      cfg.Syslog.Tag,
		})
		if err != nil {
			return nil, nil, err
		}
		lc.Output = io.MultiWriter(out, w)
		closeFn = func() { w.Close() }
	}
	return logging.New(lc), closeFn, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (nm.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return nm.NewMemoryBackend(), nil
	default:
		return nm.DialSystemBus(ctx)
	}
}

// daemon owns the long-lived components of a running server.
type daemon struct {
	cfg       *config.Config
	log       *logging.Logger
	closers   []io.Closer
	profiles  *profile.Manager
	inventory *inventory.Aggregator
	status    *inventory.StatusCache
	collector *metrics.Collector
	server    *api.Server
}

// newDaemon wires the components over backend and recovers any replace
// interrupted by a previous crash. The daemon takes ownership of backend.
func newDaemon(ctx context.Context, cfg *config.Config, backend nm.Backend, logger *logging.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: logger}
	if c, ok := backend.(io.Closer); ok {
		d.closers = append(d.closers, c)
	}

	var journal *state.ReplaceJournal
	if cfg.StateDB != "" {
		if cfg.StateDB != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.StateDB), 0755); err != nil {
				d.Close()
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		store, err := state.NewSQLiteStore(state.DefaultOptions(cfg.StateDB))
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, store)
		if journal, err = state.NewReplaceJournal(store); err != nil {
			d.Close()
			return nil, err
		}
	}

	client := nm.NewClient(backend)
	d.profiles = profile.NewManager(client, profile.Options{
		CertDir:        cfg.CertDir,
		Reserved:       cfg.ReservedProfiles,
		Unmanaged:      cfg.UnmanagedDevices,
		VerifyAttempts: cfg.VerifyAttempts,
		VerifyInterval: cfg.VerifyIntervalDuration(),
		Journal:        journal,
		Logger:         logger.WithComponent("profile"),
	})

	if n, err := d.profiles.RecoverPending(ctx); err != nil {
		logger.Error("replace recovery failed", "error", err)
	} else if n > 0 {
		logger.Warn("restored profiles from interrupted replace", "count", n)
	}

	invLog := logger.WithComponent("inventory")
	d.inventory = inventory.NewAggregator(client, inventory.Options{
		Unmanaged:        cfg.UnmanagedDevices,
		ManagedSoftware:  cfg.ManagedSoftwareDevices,
		ModemEnableFile:  cfg.ModemEnableFile,
		WifiInterface:    cfg.Wifi.Interface,
		VirtualInterface: cfg.Wifi.VirtualInterface,
		IW:               inventory.NewIW(cfg.Wifi.IWPath, cfg.ShellTimeoutDuration(), nil, invLog),
		Logger:           invLog,
	})
	d.status = inventory.NewStatusCache(d.inventory, cfg.StatusRefreshInterval(), invLog)
	d.collector = metrics.NewCollector(logger.WithComponent("metrics"), d.inventory, statsInterval)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("backend", health.BackendCheck(client))
	checker.Register("status", health.SnapshotCheck(d.status, 3*cfg.StatusRefreshInterval()))
	checker.Register("stats", health.SnapshotCheck(d.collector, 3*statsInterval))
	if journal != nil {
		checker.Register("journal", health.JournalCheck(journal))
	}

	server, err := api.NewServer(api.ServerOptions{
		Profiles:  d.profiles,
		Inventory: d.inventory,
		Status:    d.status,
		Health:    checker,
		Logger:    logger.WithComponent("api"),
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.server = server
	return d, nil
}

// Run serves the API until ctx is done, then shuts the server down.
func (d *daemon) Run(ctx context.Context) error {
	d.status.Start(ctx)
	go d.collector.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.Start(d.cfg.Listen) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	d.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Close stops background work and releases the backend and state store.
func (d *daemon) Close() {
	if d.status != nil {
		d.status.Close()
	}
	if d.collector != nil {
		d.collector.Stop()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.log.Warn("close failed", "error", err)
		}
	}
	d.closers = nil
}
