package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/prestodb-contrib/prestods"
)

const cliRefID = "A"

func newQueryCmd() *cobra.Command {
	var (
		configPath string
		format     string
		legend     string
		since      time.Duration
		interval   time.Duration
		maxRows    int
	)

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a query outside Grafana and print the resulting frames",
		Long: `Run a query against the datasource described by a YAML file and print
the frames the plugin would return to Grafana, legend names included.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			ds, err := openDatasource(ctx, configPath)
			if err != nil {
				return err
			}
			defer ds.Dispose()

			b, err := json.Marshal(prestods.Query{
				RefID:        cliRefID,
				RawSQL:       args[0],
				Format:       prestods.Format(format),
				LegendFormat: legend,
			})
			if err != nil {
				return err
			}
			now := time.Now()
			resp, err := ds.QueryData(ctx, &backend.QueryDataRequest{
				Queries: []backend.DataQuery{{
					RefID:     cliRefID,
					JSON:      b,
					Interval:  interval,
					TimeRange: backend.TimeRange{From: now.Add(-since), To: now},
				}},
			})
			if err != nil {
				return err
			}

			dr := resp.Responses[cliRefID]
			if dr.Error != nil {
				return dr.Error
			}
			for _, frame := range dr.Frames {
				table, err := frame.StringTable(-1, maxRows)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), table)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML datasource file")
	cmd.Flags().StringVarP(&format, "format", "f", string(prestods.FormatTable), "result format: table or time_series")
	cmd.Flags().StringVarP(&legend, "legend", "l", "", "legend format, e.g. {{host}}")
	cmd.Flags().DurationVar(&since, "since", time.Hour, "length of the time range ending now")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "value of $__interval")
	cmd.Flags().IntVar(&maxRows, "max-rows", 20, "rows printed per frame")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// openDatasource builds a datasource instance from a YAML file.
func openDatasource(ctx context.Context, path string) (*prestods.Datasource, error) {
	settings, err := prestods.LoadInstanceSettings(path)
	if err != nil {
		return nil, err
	}
	inst, err := prestods.NewDatasource(ctx, settings)
	if err != nil {
		return nil, err
	}
	ds, ok := inst.(*prestods.Datasource)
	if !ok {
		return nil, errors.Errorf("unexpected instance type %T", inst)
	}
	return ds, nil
}
