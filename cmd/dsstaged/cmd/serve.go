package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/materials-commons/dsstage/pkg/clog"
	"github.com/materials-commons/dsstage/pkg/config"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve manager status and logging controls over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusDeps, err := newStatusDependencies(managerName())
		if err != nil {
			return err
		}
		defer statusDeps.Close(10 * time.Second)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true

		setupRoutes(RouteDependencies{
			e:          e,
			fs:         afero.NewOsFs(),
			stors:      statusDeps.stors,
			reporter:   statusDeps.reporter,
			logHandler: clog.NewHandler(os.Stdout),
			managerDir: config.GetKeyWithDefault(config.KeyManagerDir, "."),
		})

		go shutdownOnSignal(e)

		log.Infof("Listening on %s", serveAddress)
		if err := e.Start(serveAddress); err != nil && err != http.ErrServerClosed {
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddress, "address", "localhost:1360", "address to listen on")
}

func shutdownOnSignal(e *echo.Echo) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Infof("Got %s signal, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown failed: %s", err)
	}
}
