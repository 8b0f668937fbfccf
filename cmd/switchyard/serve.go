package main

import (
	"os"

	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		address      string
		adminAddress string
		strictNext   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the server with the routes and plugins from switchyard.json.

The server shuts down gracefully on SIGINT or SIGTERM, waiting for
in-flight requests up to the configured shutdown timeout.

Examples:
  switchyard serve
  switchyard serve --address=:9000
  switchyard serve --admin=127.0.0.1:9191`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			// Apply command-line overrides
			if address != "" {
				cfg.Server.Address = address
			}
			if adminAddress != "" {
				cfg.Admin.Enabled = true
				cfg.Admin.Address = adminAddress
			}
			if cmd.Flags().Changed("strict-next") {
				cfg.Server.StrictNext = strictNext
			}

			a, err := newApp(cfg, os.Stderr)
			if err != nil {
				return err
			}
			success("switchyard %s serving %d routes on %s", version, len(cfg.Routes), cfg.Server.Address)
			if cfg.Admin.Enabled {
				info("admin: http://%s", cfg.Admin.Address)
			}
			return a.run()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Address to listen on (default from switchyard.json)")
	cmd.Flags().StringVar(&adminAddress, "admin", "", "Enable the admin listener on this address")
	cmd.Flags().BoolVar(&strictNext, "strict-next", false, "Treat a second next() call as a fault")

	return cmd
}
