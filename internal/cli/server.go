package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"theory-battle/internal/config"
	"theory-battle/internal/infra/memory"
	pginfra "theory-battle/internal/infra/postgres"
	redisinfra "theory-battle/internal/infra/redis"
	"theory-battle/internal/logging"
	"theory-battle/internal/metrics"
	"theory-battle/internal/realtime"
	transport "theory-battle/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the relay server.
func NewStartCmd(configPath, port *string, envPort string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the battle relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", envPort, "port to listen on (defaults to server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log := logging.New(serviceName, cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	var hub realtime.Client = memory.NewHub(log)
	if rdb != nil {
		defer rdb.Close()
		presenceTTL := config.Duration(cfg.Redis.TTL, 30*time.Second)
		hub = redisinfra.NewHub(rdb, presenceTTL, log)
		log.WithField("presence_ttl", presenceTTL.String()).Info("using redis realtime hub")
	}

	pg, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	var history transport.BattleStore = memory.NewMatchHistory()
	if pg != nil {
		defer pg.Close()
		history = pginfra.NewMatchStore(pg)
	}

	m := metrics.New("theory_battle")
	relay := transport.NewRelayHandler(hub, log, m)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(relay, history, m, log),
		ReadTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", finalPort).Info("starting battle relay")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server failed")
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
