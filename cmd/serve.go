package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/coderev/internal/api"
	"github.com/joescharf/coderev/internal/daemon"
	"github.com/joescharf/coderev/internal/git"
	"github.com/joescharf/coderev/internal/models"
)

var serveStop bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review HTTP server",
	Long: `Start the HTTP server that accepts review submissions, streams
progress over SSE, and archives completed reports.

By default it listens on port 8080. Use --port to change it.`,
	RunE: serveRun,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "Stop a running server and exit")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func serveRun(cmd *cobra.Command, args []string) error {
	pidFile := daemon.NewPIDFile(viper.GetString("server.pid_file"))

	if serveStop {
		pid, running := pidFile.IsRunning()
		if !running {
			return fmt.Errorf("no running server found (pid file: %s)", pidFile.Path)
		}
		if err := pidFile.Signal(sigTERM()); err != nil {
			return fmt.Errorf("stop server: %w", err)
		}
		ui.Success("Sent shutdown signal to server (pid %d)", pid)
		return nil
	}

	if pid, running := pidFile.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d); stop it with 'coderev serve --stop'", pid)
	}

	svc, err := newReviewServices()
	if err != nil {
		return err
	}
	st, err := getStore()
	if err != nil {
		return err
	}

	// Completed runs are archived as they finish so reports survive restarts.
	svc.registry.OnTerminal = func(run *models.ReviewRun) {
		if run.Stage != models.StageComplete {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.SaveReport(ctx, run.BuildReport()); err != nil {
			ui.Warning("Failed to archive report %s: %v", run.ID, err)
		}
	}

	if err := pidFile.Write(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			ui.Warning("Failed to remove pid file: %v", err)
		}
	}()

	apiServer := api.NewServer(svc.controller, svc.registry, svc.gate, st,
		git.NewGitHubClient(), svc.gateway.Meter())

	port := viper.GetInt("server.port")
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      apiServer.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
	}

	errCh := make(chan error, 1)
	go func() {
		ui.Info("Listening on http://localhost:%d", port)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals()...)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		ui.Info("Received %s, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return st.Close()
}
