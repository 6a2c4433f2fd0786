package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/lfs"
	"github.com/cutmanhq/cutman/internal/repostore"
	"github.com/cutmanhq/cutman/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Cutman server",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "listen address")
	cmd.Flags().Int("port", 0, "listen port")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	hasAdmin, err := ctx.store.HasAdminToken()
	if err != nil {
		return fmt.Errorf("check admin token: %w", err)
	}
	if !hasAdmin {
		return fmt.Errorf("no admin token found; run \"cutman admin init\" first")
	}

	repos := repostore.New(ctx.cfg.DataDir, ctx.log)

	refs, err := ctx.store.ListAllRepoRefs()
	if err != nil {
		return fmt.Errorf("list repos for sweep: %w", err)
	}
	if err := repos.Sweep(refs); err != nil {
		return fmt.Errorf("sweep orphan repos: %w", err)
	}

	lfsStorage := lfs.NewLocalStorage(filepath.Join(ctx.cfg.DataDir, "lfs"))

	srv := server.New(ctx.store, repos, lfsStorage, ctx.cfg, ctx.log)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", ctx.cfg.Host, ctx.cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Duration(ctx.cfg.HTTP.IdleTimeoutSeconds) * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		ctx.log.Info("shutting down")
		drainCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(ctx.cfg.HTTP.DrainTimeoutSeconds)*time.Second)
		defer cancel()
		shutdownErr <- httpServer.Shutdown(drainCtx)
	}()

	ctx.log.WithField("addr", httpServer.Addr).Info("cutman listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
