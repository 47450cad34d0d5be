package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"holdem-rooms/internal/auth"
	"holdem-rooms/internal/bankroll"
	"holdem-rooms/internal/config"
	"holdem-rooms/internal/fanout"
	"holdem-rooms/internal/gateway"
	"holdem-rooms/internal/httpapi"
	"holdem-rooms/internal/ledger"
	"holdem-rooms/internal/lobby"
	"holdem-rooms/internal/presence"
	"holdem-rooms/internal/session"
	"holdem-rooms/internal/store"
)

// NewRootCmd creates the server command. Flags override the config file and
// HOLDEM_* environment variables.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "holdem-rooms",
		Short:         "Multi-table hold'em server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("addr", ":8080", "listen address")
	flags.String("store", "memory", "storage backend: memory, sqlite or postgres")
	flags.String("sqlite-path", "data/holdem.db", "sqlite database file")
	flags.String("postgres-dsn", "", "postgres connection string")
	for _, name := range []string{"addr", "store"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	_ = v.BindPFlag("sqlite_path", flags.Lookup("sqlite-path"))
	_ = v.BindPFlag("postgres_dsn", flags.Lookup("postgres-dsn"))

	return rootCmd
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.Store, cfg.SQLitePath, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	authService, err := auth.NewService(ctx, cfg.Store, db, cfg.AuthSecret)
	if err != nil {
		return err
	}
	defer authService.Close()

	bankrollService, err := bankroll.NewService(ctx, cfg.Store, db, cfg.StartingBankroll)
	if err != nil {
		return err
	}
	defer bankrollService.Close()

	ledgerService, ledgerMode, err := ledger.NewService(ctx, cfg.Store, db)
	if err != nil {
		return err
	}
	defer ledgerService.Close()

	hub := fanout.NewHub()
	pres := presence.New()
	lby := lobby.New(hub, pres, bankrollService, ledgerService, session.Options{
		TurnTimeout:     cfg.TurnTimeout(),
		RoundDelay:      cfg.RoundDelay(),
		DeleteWhenEmpty: cfg.DeleteWhenEmpty,
		TickInterval:    250 * time.Millisecond,
		Seed:            time.Now().UnixNano(),
	}, cfg.MaxSeats)
	gw := gateway.New(lby, hub, pres, authService, bankrollService, cfg.AllowedOrigins)

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(httpapi.Deps{
		Auth:      authService,
		Bankroll:  bankrollService,
		Ledger:    ledgerService,
		Lobby:     lby,
		WebSocket: gw.HandleWebSocket,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Store: %s, ledger: %s", cfg.Store, ledgerMode)
		log.Printf("[Server] Listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("[Server] Shutting down")
	lby.Shutdown()
	gw.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
