package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func routesCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List configured routes",
		Long: `Build the route table from switchyard.json and print it in
registration order, which is also match priority among equal paths.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, io.Discard)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			routes := a.srv.Routes()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(routes)
			}

			if len(routes) == 0 {
				fmt.Fprintln(out, "no routes configured")
				return nil
			}
			for _, r := range routes {
				version := r.Version
				if version == "" {
					version = "*"
				}
				fmt.Fprintf(out, "%-7s %-30s %-10s %-24s %s\n",
					r.Method, r.Path, version, r.Name, strings.Join(r.Handlers, " > "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print routes as JSON")

	return cmd
}
