// Command statichooks runs the hook dispatch probes against a datastore.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leandroluk/golem-statichooks/config"
	"github.com/leandroluk/golem-statichooks/core"
	"github.com/leandroluk/golem-statichooks/driver/memory"
	mongodriver "github.com/leandroluk/golem-statichooks/driver/mongo"
	"github.com/leandroluk/golem-statichooks/driver/postgres"
	"github.com/leandroluk/golem-statichooks/metrics"
	"github.com/leandroluk/golem-statichooks/probe"
	"github.com/leandroluk/golem-statichooks/ux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootFlags struct {
	configPath  string
	driver      string
	logLevel    string
	parallel    int
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "statichooks",
		Short:        "Probe how hooks fire around static overrides and built-in operations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&flags.driver, "driver", "", "datastore driver: memory, mongo or postgres")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run probe scenarios (all when none is named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Scenarios = args
			}
			return run(cmd.Context(), cfg)
		},
	}
	runCmd.Flags().IntVar(&flags.parallel, "parallel", 0, "number of scenarios run at once")
	runCmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List probe scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			ux.NewReporter(cmd.OutOrStdout()).ScenarioList(probe.All())
			return nil
		},
	}

	root.AddCommand(runCmd, listCmd)
	return root
}

// loadConfig reads the configuration and applies the flags that were set.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("driver") {
		cfg.Driver = flags.driver
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = flags.parallel
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	if parsed == zapcore.DebugLevel {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(parsed)
	return zapConfig.Build()
}

// openDriver connects to the configured datastore and returns the database
// name scenarios should use.
func openDriver(ctx context.Context, cfg config.Config) (core.Driver, string, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		driver, err := mongodriver.NewMongoDriver(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, "", err
		}
		return driver, "", nil
	case config.DriverPostgres:
		driver, err := postgres.NewPostgresDriver(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, "", err
		}
		if err := driver.Connect(ctx); err != nil {
			_ = driver.Close(ctx)
			return nil, "", err
		}
		return driver, cfg.Postgres.Schema, nil
	default:
		return memory.New(), "", nil
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	scenarios, err := probe.Lookup(cfg.Scenarios...)
	if err != nil {
		return err
	}

	driver, database, err := openDriver(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := driver.Close(closeCtx); err != nil {
			logger.Warn("close driver", zap.Error(err))
		}
	}()
	logger.Info("connected", zap.String("driver", cfg.Driver))

	collector := metrics.NewCollector(nil)
	if cfg.MetricsAddr != "" {
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() { _ = server.Shutdown(context.Background()) }()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	reporter := ux.NewReporter(os.Stdout)
	reporter.Banner(cfg.Driver, len(scenarios))

	env := &probe.Env{
		Driver:     driver,
		Database:   database,
		Logger:     logger,
		Observers:  []core.Observer{collector},
		Middleware: []core.Middleware{collector.Middleware, core.LoggingMiddleware(logger), core.RecoverMiddleware(logger)},
	}
	runner := probe.NewRunner(env,
		probe.WithParallel(cfg.Parallel),
		probe.WithTimeout(cfg.Timeout),
		probe.WithReporter(reporter),
	)
	resultList, runErr := runner.Run(ctx, scenarios)

	reporter.Summary(resultList)
	if totalList, err := collector.Summary(); err == nil {
		reporter.HookTable(totalList)
	} else {
		logger.Warn("gather metrics", zap.Error(err))
	}
	return runErr
}
