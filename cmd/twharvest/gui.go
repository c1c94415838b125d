package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twharvest/twharvest/internal/controller"
	"github.com/twharvest/twharvest/pkg/errors"
	"github.com/twharvest/twharvest/pkg/ui"
)

var guiAddr string

var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Start the local HTTP/SSE controller and serve the browser UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		exePath, err := os.Executable()
		if err != nil {
			return errors.Wrap(errors.Internal, err)
		}

		srv := controller.New(cfg, log, exePath)
		httpServer := &http.Server{Addr: guiAddr, Handler: srv.Handler()}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		errCh := make(chan error, 1)
		go func() {
			ui.PrintSuccess(fmt.Sprintf("controller listening on http://%s", guiAddr))
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			return httpServer.Shutdown(context.Background())
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return errors.Wrap(errors.Internal, err)
			}
			return nil
		}
	},
}

func init() {
	guiCmd.Flags().StringVar(&guiAddr, "addr", "127.0.0.1:8787", "address for the controller to listen on")
	rootCmd.AddCommand(guiCmd)
}
