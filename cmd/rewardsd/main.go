package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/spinrewards/internal/config"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/httpapi"
	"github.com/MarkoPoloResearchLab/spinrewards/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/spinrewards/pkg/rewards"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	envPrefix = "REWARDS"

	flagDatabaseURL      = "database-url"
	flagStoreDriver      = "store-driver"
	flagListenAddr       = "listen-addr"
	flagTimezone         = "timezone"
	flagDefaultDailyCap  = "default-daily-cap"
	flagRetryAttempts    = "retry-attempts"
	flagRetryBaseDelay   = "retry-base-delay"
	flagEventBus         = "event-bus"
	flagEventTopicPrefix = "event-topic-prefix"
	flagNATSURL          = "nats-url"
	flagRedisAddr        = "redis-addr"
	flagExpiryInterval   = "expiry-interval"
	flagAllowedOrigins   = "allowed-origins"
	flagRequestTimeout   = "request-timeout"

	flagStartDate = "start"
	flagEndDate   = "end"
	flagDailyCap  = "daily-cap"
	flagNickname  = "nickname"
	flagName      = "name"
	flagPrice     = "price"
	flagStock     = "stock"
	flagInactive  = "inactive"
)

func main() {
	_ = godotenv.Load()
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rewardsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd, _ := newCommandTree()
	return cmd
}

func newCommandTree() (*cobra.Command, *config.Config) {
	settings := viper.New()
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "rewardsd",
		Short:         "Daily roulette rewards service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(settings, cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "sqlite:///tmp/rewards.db", "database url (postgres:// or sqlite://)")
	flags.String(flagStoreDriver, config.StoreDriverGorm, "store driver: gorm, pgx or memory")
	flags.String(flagListenAddr, ":8080", "HTTP listen address")
	flags.String(flagTimezone, "Asia/Seoul", "timezone that defines the calendar day")
	flags.Int64(flagDefaultDailyCap, 100000, "cap used when a day's budget is provisioned lazily")
	flags.Int(flagRetryAttempts, 5, "attempts for transactions that hit a concurrent update")
	flags.Duration(flagRetryBaseDelay, 10*time.Millisecond, "base backoff between retries")
	flags.String(flagEventBus, config.EventBusNone, "event bus: none, nats or redis")
	flags.String(flagEventTopicPrefix, "rewards", "prefix for published event topics")
	flags.String(flagNATSURL, "", "NATS server url")
	flags.String(flagRedisAddr, "", "Redis address")
	flags.Duration(flagExpiryInterval, time.Hour, "interval of the point expiry sweep, 0 disables it")
	flags.String(flagAllowedOrigins, "http://localhost:3000", "comma-separated CORS origins")
	flags.Duration(flagRequestTimeout, 5*time.Second, "per-request timeout")

	cmd.AddCommand(
		newServeCommand(cfg),
		newMigrateCommand(cfg),
		newBudgetsCommand(cfg),
		newPointsCommand(cfg),
		newUsersCommand(cfg),
		newProductsCommand(cfg),
	)
	return cmd, cfg
}

func loadConfig(settings *viper.Viper, cmd *cobra.Command, cfg *config.Config) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	if err := settings.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	*cfg = config.Config{
		DatabaseURL:      settings.GetString(flagDatabaseURL),
		StoreDriver:      settings.GetString(flagStoreDriver),
		ListenAddr:       settings.GetString(flagListenAddr),
		Timezone:         settings.GetString(flagTimezone),
		DefaultDailyCap:  settings.GetInt64(flagDefaultDailyCap),
		RetryAttempts:    settings.GetInt(flagRetryAttempts),
		RetryBaseDelay:   settings.GetDuration(flagRetryBaseDelay),
		EventBus:         settings.GetString(flagEventBus),
		EventTopicPrefix: settings.GetString(flagEventTopicPrefix),
		NATSURL:          settings.GetString(flagNATSURL),
		RedisAddr:        settings.GetString(flagRedisAddr),
		ExpiryInterval:   settings.GetDuration(flagExpiryInterval),
		AllowedOrigins:   config.ParseAllowedOrigins(settings.GetString(flagAllowedOrigins)),
		RequestTimeout:   settings.GetDuration(flagRequestTimeout),
	}
	return cfg.Validate()
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the point expiry sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := openApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	router := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, app.service, logger)

	logger.Info("rewards service ready",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("timezone", app.service.Location().String()),
		zap.Duration("expiry_interval", cfg.ExpiryInterval))

	serve := func(ctx context.Context) error {
		return httpapi.Serve(ctx, cfg.ListenAddr, router, logger)
	}
	return runServices(ctx, serve, app.service, cfg.ExpiryInterval, logger)
}

// runServices runs the HTTP server next to the expiry sweep. The sweep stops
// as soon as the server returns, and the server's error is returned.
func runServices(ctx context.Context, serve func(ctx context.Context) error, expirer pointExpirer, interval time.Duration, logger *zap.Logger) error {
	group, groupCtx := errgroup.WithContext(ctx)
	sweepCtx, stopSweep := context.WithCancel(groupCtx)
	defer stopSweep()
	group.Go(func() error {
		defer stopSweep()
		return serve(groupCtx)
	})
	group.Go(func() error {
		runExpirySweep(sweepCtx, expirer, interval, logger)
		return nil
	})
	return group.Wait()
}

type pointExpirer interface {
	ExpirePoints(ctx context.Context) (rewards.ExpirySummary, error)
}

// runExpirySweep expires lapsed lots every interval until ctx is done.
func runExpirySweep(ctx context.Context, expirer pointExpirer, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := expirer.ExpirePoints(ctx)
			if err != nil {
				logger.Warn("point expiry sweep failed", zap.Error(err))
				continue
			}
			if summary.ExpiredLots > 0 {
				logger.Info("point expiry sweep",
					zap.Int("expired_lots", summary.ExpiredLots),
					zap.Int64("expired_points", summary.ExpiredPoints.Int64()))
			}
		}
	}
}

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(migrations.Commands(), "|") + "]",
		Short:     "Apply the PostgreSQL schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: migrations.Commands(),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := migrations.CommandUp
			if len(args) == 1 {
				command = args[0]
			}
			if !config.IsPostgresURL(cfg.DatabaseURL) {
				return fmt.Errorf("migrate requires a postgres database url")
			}
			return migrations.Run(cmd.Context(), cfg.DatabaseURL, command)
		},
	}
}

func newBudgetsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "budgets", Short: "Manage daily budgets"}
	provision := &cobra.Command{
		Use:   "provision",
		Short: "Create missing daily budgets for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawStart, err := cmd.Flags().GetString(flagStartDate)
			if err != nil {
				return err
			}
			start, err := rewards.ParseDate(rawStart)
			if err != nil {
				return err
			}
			rawEnd, err := cmd.Flags().GetString(flagEndDate)
			if err != nil {
				return err
			}
			end := start
			if rawEnd != "" {
				if end, err = rewards.ParseDate(rawEnd); err != nil {
					return err
				}
			}
			dailyCap, err := cmd.Flags().GetInt64(flagDailyCap)
			if err != nil {
				return err
			}
			if dailyCap < 0 {
				return fmt.Errorf("%w: daily cap must not be negative", rewards.ErrInvalidAmount)
			}
			if dailyCap == 0 {
				dailyCap = cfg.DefaultDailyCap
			}
			return withApplication(cmd, *cfg, func(app *application) error {
				budgets, err := app.service.EnsureBudgetRange(cmd.Context(), start, end, rewards.Points(dailyCap))
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), budgets)
			})
		},
	}
	provision.Flags().String(flagStartDate, "", "first day (YYYY-MM-DD)")
	provision.Flags().String(flagEndDate, "", "last day (YYYY-MM-DD), defaults to the first day")
	provision.Flags().Int64(flagDailyCap, 0, "cap for newly created days")
	_ = provision.MarkFlagRequired(flagStartDate)
	cmd.AddCommand(provision)
	return cmd
}

func newPointsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "points", Short: "Maintain point lots"}
	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire every lapsed point lot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, *cfg, func(app *application) error {
				summary, err := app.service.ExpirePoints(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	})
	return cmd
}

func newUsersCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage users"}
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			nickname, err := cmd.Flags().GetString(flagNickname)
			if err != nil {
				return err
			}
			nickname = strings.TrimSpace(nickname)
			if nickname == "" {
				return fmt.Errorf("nickname is required")
			}
			return withApplication(cmd, *cfg, func(app *application) error {
				user, err := app.catalog.CreateUser(cmd.Context(), nickname)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	create.Flags().String(flagNickname, "", "display name")
	cmd.AddCommand(create)
	return cmd
}

func newProductsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "products", Short: "Manage the product catalog"}
	create := &cobra.Command{
		Use:   "create",
		Short: "Add a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			name, err := flags.GetString(flagName)
			if err != nil {
				return err
			}
			rawPrice, err := flags.GetInt64(flagPrice)
			if err != nil {
				return err
			}
			stock, err := flags.GetInt64(flagStock)
			if err != nil {
				return err
			}
			inactive, err := flags.GetBool(flagInactive)
			if err != nil {
				return err
			}
			product, err := newCatalogProduct(name, rawPrice, stock, !inactive)
			if err != nil {
				return err
			}
			return withApplication(cmd, *cfg, func(app *application) error {
				created, err := app.catalog.CreateProduct(cmd.Context(), product)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	create.Flags().String(flagName, "", "product name")
	create.Flags().Int64(flagPrice, 0, "unit price in points")
	create.Flags().Int64(flagStock, 0, "units in stock")
	create.Flags().Bool(flagInactive, false, "create the product as not purchasable")
	cmd.AddCommand(create)
	return cmd
}

func newCatalogProduct(name string, rawPrice int64, stock int64, active bool) (rewards.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return rewards.Product{}, fmt.Errorf("product name is required")
	}
	price, err := rewards.NewPositivePoints(rawPrice)
	if err != nil {
		return rewards.Product{}, err
	}
	if stock < 0 {
		return rewards.Product{}, fmt.Errorf("%w: stock must not be negative", rewards.ErrInvalidAmount)
	}
	return rewards.Product{Name: name, Price: price, Stock: stock, Active: active}, nil
}

func withApplication(cmd *cobra.Command, cfg config.Config, run func(app *application) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	app, err := openApplication(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(app)
}

func writeJSON(writer io.Writer, value any) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
