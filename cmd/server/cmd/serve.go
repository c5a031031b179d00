package cmd

import (
	"github.com/nfrund/relay/internal/app"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/logging"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		logger := logging.New()
		if serveAddr != "" {
			cfg.ServerAddr = serveAddr
		}

		a := app.New(cfg, logger)
		defer a.Release()

		s, err := a.Server()
		if err != nil {
			logger.Error("Failed to start", "error", err)
			return err
		}
		return s.Start(cfg.GetServerAddr())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides SERVER_ADDR")
	rootCmd.AddCommand(serveCmd)
}
