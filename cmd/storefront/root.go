package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-plant-storefront/config"
	"github.com/aluiziolira/go-plant-storefront/storage"
)

// app carries state shared by every subcommand.
type app struct {
	out        io.Writer
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out, cfg: config.DefaultConfig(), logger: slog.Default()}

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Plant storefront catalog tools",
		Long:          "Crawl a plant catalog, browse it with filters, and inspect the client-side storage and performance state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "TOML configuration file")
	flags.BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "Enable verbose logging")
	flags.StringVar(&a.cfg.Storage.Path, "storage-path", a.cfg.Storage.Path, "Badger directory for persistent storage (empty keeps it in memory)")
	flags.StringVar(&a.cfg.Storage.Namespace, "storage-namespace", a.cfg.Storage.Namespace, "Key prefix for stored items")
	flags.StringVar(&a.cfg.MetricsAddr, "metrics-addr", a.cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	root.AddCommand(
		newCrawlCmd(a),
		newBrowseCmd(a),
		newStorageCmd(a),
		newMonitorCmd(a),
	)
	return root
}

// loadConfig layers defaults, the config file, STOREFRONT_* variables and
// finally the flags the user set explicitly.
func (a *app) loadConfig(cmd *cobra.Command) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	*a.cfg = *config.DefaultConfig()
	if a.configPath != "" {
		if err := a.cfg.LoadFile(a.configPath); err != nil {
			return err
		}
	}
	if err := a.cfg.ApplyEnv(); err != nil {
		return err
	}
	for name, value := range changed {
		if name == "config" {
			continue
		}
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	if _, ok := changed["storage-path"]; ok {
		a.cfg.Storage.InMemory = a.cfg.Storage.Path == ""
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := newLogger(a.cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	a.logger = logger
	return nil
}

// openStore opens the configured storage backend. The returned close func
// releases the badger database when one is used.
func (a *app) openStore() (*storage.Manager, func() error, error) {
	opts := []storage.Option{
		storage.WithNamespace(a.cfg.Storage.Namespace),
		storage.WithDefaultTTL(a.cfg.Storage.DefaultTTL),
		storage.WithQuota(a.cfg.Storage.QuotaBytes),
		storage.WithLogger(a.logger),
	}
	if a.cfg.Storage.InMemory {
		return storage.NewManager(storage.NewMemoryPort(0), opts...), func() error { return nil }, nil
	}

	port, err := storage.OpenBadger(storage.BadgerConfig{
		Path:   a.cfg.Storage.Path,
		Logger: a.logger.With(slog.String("component", "badger")),
	})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewManager(port, opts...), port.Close, nil
}
