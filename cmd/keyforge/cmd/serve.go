package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	keyforgehttp "github.com/keyforge/keyforge/internal/adapter/inbound/http"
	"github.com/keyforge/keyforge/internal/adapter/outbound/memstore"
	"github.com/keyforge/keyforge/internal/adapter/outbound/redisstore"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/domain/apikey"
	"github.com/keyforge/keyforge/internal/domain/audit"
	"github.com/keyforge/keyforge/internal/domain/ratelimit"
	"github.com/keyforge/keyforge/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	validatorStore, managerStore, closeStores := buildStores(cfg, logger)
	defer closeStores()

	auditW := audit.New(validatorStore, logger, func() float64 { return float64(time.Now().Unix()) })
	limiter := ratelimit.New(
		ratelimit.Config{Threshold: cfg.Rate.RequestsPerMinute, CounterTTL: cfg.Rate.CounterTTLSeconds},
		validatorStore.IncrRate,
	)

	validator := service.NewValidator(validatorStore, limiter, auditW, time.Now)
	admin := service.NewAdmin(managerStore, time.Now)

	metrics := keyforgehttp.NewMetrics(prometheus.DefaultRegisterer)
	handlers := keyforgehttp.NewHandlers(validator, admin, metrics, logger)
	healthChecker := keyforgehttp.NewHealthChecker(validatorStore, managerStore)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := keyforgehttp.New(handlers, healthChecker, metrics, cfg.Admin.SharedSecret,
		keyforgehttp.WithAddr(addr),
		keyforgehttp.WithLogger(logger),
	)

	logger.Info("keyforge starting", "addr", addr, "dev_mode", cfg.DevMode)
	return server.Start(ctx)
}

// buildStores constructs the validator- and manager-principal stores.
// DevMode uses two independent in-memory stores since there is no Redis
// to split by credential; production wires two Redis connection pools
// against the same keyspace under distinct principals.
func buildStores(cfg *config.Config, logger *slog.Logger) (apikey.Store, apikey.Store, func()) {
	if cfg.DevMode {
		v := memstore.New()
		m := memstore.New()
		return v, m, func() { v.Stop(); m.Stop() }
	}

	v := redisstore.New(redisstore.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Store.Host, cfg.Store.Port),
		Username: cfg.Store.ValidatorPrincipal,
		Password: cfg.Store.ValidatorSecret,
		DB:       cfg.Store.DBIndex,
	})
	m := redisstore.New(redisstore.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Store.Host, cfg.Store.Port),
		Username: cfg.Store.ManagerPrincipal,
		Password: cfg.Store.ManagerSecret,
		DB:       cfg.Store.DBIndex,
	})
	return v, m, func() {
		if err := v.Close(); err != nil {
			logger.Warn("closing validator store", "error", err)
		}
		if err := m.Close(); err != nil {
			logger.Warn("closing manager store", "error", err)
		}
	}
}
