// Command gpx_presto is the backend executable of the Presto datasource
// plugin. Run without arguments it serves the plugin to Grafana.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend/datasource"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/prestodb-contrib/prestods"
)

// Set at build time.
var (
	Revision  = ""
	GoVersion = ""
	BuiltAt   = ""
	Version   = ""
)

var (
	metricsAddr string
	showVersion bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.DefaultLogger.Error(err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gpx_presto",
		Short:        "Presto datasource backend for Grafana",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":3100", "address of the standalone /metrics listener, empty to disable")
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "show version")

	root.AddCommand(newVersionCmd(), newQueryCmd(), newMetricFindCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Version: %v, Revision: %v, GoVersion: %v, BuiltAt: %v\n", Version, Revision, GoVersion, BuiltAt)
}

func runServe(cmd *cobra.Command, args []string) error {
	if showVersion {
		printVersion(cmd.OutOrStdout())
		return nil
	}

	log.DefaultLogger.Info("starting presto datasource backend", "version", Version)
	if metricsAddr != "" {
		go serveMetrics(metricsAddr)
	}
	return datasource.Manage(prestods.PluginID, prestods.NewDatasource, datasource.ManageOpts{})
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.DefaultLogger.Warn("metrics listener stopped", "addr", addr, "err", err)
	}
}
