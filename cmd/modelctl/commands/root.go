// Package commands implements the modelctl command tree.
package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modelkit/config"
	"modelkit/db"
	"modelkit/logging"
	"modelkit/monitoring"
	"modelkit/pool"
)

// app holds what the subcommands share. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	configPath  string
	logLevel    string
	dumpMetrics bool

	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	pool     *pool.Pool
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "modelctl",
		Short:         "Inspect, document, publish and run packaged models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			if a.dumpMetrics {
				return writeMetrics(cmd.ErrOrStderr(), a.registry)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (defaults are used when empty)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level from the config")
	root.PersistentFlags().BoolVar(&a.dumpMetrics, "metrics", false, "Print the collected metrics to stderr on success")

	root.AddCommand(
		newListCmd(a),
		newDescribeCmd(a),
		newSchemaCmd(a),
		newPredictCmd(a),
		newPublishCmd(a),
		newRunsCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	p, err := pool.New(cfg.Pool.Size, logger, monitoring.NewMetrics(a.registry))
	if err != nil {
		return err
	}
	for _, m := range cfg.Models {
		p.Add(m.QualifiedName, m.ArtifactDir)
	}

	a.cfg = cfg
	a.logger = logger
	a.pool = p
	return nil
}

func (a *app) openStore() (*db.Store, error) {
	store, err := db.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}
