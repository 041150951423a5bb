package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vovakirdan/medichat/internal/config"
	"github.com/vovakirdan/medichat/internal/log"
	"github.com/vovakirdan/medichat/internal/stub"
)

func newStubCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the development stub of the backend collaborators",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStub(*configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")

	return cmd
}

func runStub(configPath, addr string) error {
	bootLog := log.New("info")
	cfg, _, err := config.Load(bootLog, configPath)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           stub.New(logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	logger.Info().Str("addr", addr).Msg("stub collaborators listening")

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info().Msg("shutting down stub server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
