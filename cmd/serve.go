package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/claim-evaluator/internal/api"
	"github.com/spigell/claim-evaluator/internal/logger"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the claim evaluation API over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		logger := newLogger()
		defer logger.Sync()

		config, err := getConfig()
		if err != nil {
			logger.Fatal("getting config", zap.Error(err))
		}

		if err := serve(config, logger); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "address to listen on (overrides server.listen)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))

	rootCmd.AddCommand(serveCmd)
}

func serve(config *Config, log *zap.Logger) error {
	if config.Server == nil {
		return errors.New("server configuration is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	evaluator, err := buildEvaluator(ctx, config, log)
	if err != nil {
		return err
	}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := api.NewServer(evaluator, config.Server.Config, logger.Component(log, "api"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              config.Server.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", zap.String("listen", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
