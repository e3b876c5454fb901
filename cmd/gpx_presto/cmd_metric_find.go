package main

import (
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prestodb-contrib/prestods"
)

func newMetricFindCmd() *cobra.Command {
	var (
		configPath   string
		grafanaURL   string
		token        string
		datasourceID int64
		variable     string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "metric-find [sql]",
		Short: "Resolve template variable options for a query",
		Long: `Resolve the options a template variable query produces.

With --grafana-url the query is posted to Grafana's /api/ds/query endpoint for
the datasource --datasource-id. Otherwise it runs directly against the
datasource described by --config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			opts := prestods.MetricFindOptions{Variable: variable}
			var values []prestods.MetricFindValue
			if grafanaURL != "" {
				fetcher := prestods.NewHTTPFetcher(grafanaURL, timeout)
				fetcher.Token = token
				finder := prestods.NewMetricFinder(datasourceID, fetcher, nil)
				values = finder.Find(ctx, args[0], opts)
			} else {
				ds, err := openDatasource(ctx, configPath)
				if err != nil {
					return err
				}
				defer ds.Dispose()
				values = ds.MetricFind(ctx, args[0], opts)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(values)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML datasource file")
	cmd.Flags().StringVar(&grafanaURL, "grafana-url", "", "Grafana root URL")
	cmd.Flags().StringVar(&token, "token", "", "Grafana service account token")
	cmd.Flags().Int64Var(&datasourceID, "datasource-id", 0, "numeric id of the datasource in Grafana")
	cmd.Flags().StringVar(&variable, "variable", "", "name of the variable being refreshed")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout")
	cmd.MarkFlagsOneRequired("config", "grafana-url")
	return cmd
}
