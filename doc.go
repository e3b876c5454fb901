// Package prestods implements the backend of a Grafana datasource plugin for
// Presto.
//
// The plugin process is started by Grafana and serves one Datasource per
// configured instance:
//
//	err := datasource.Manage(prestods.PluginID, prestods.NewDatasource, datasource.ManageOpts{})
//
// # Query path
//
// Each QueryData call runs through a Pipeline:
//
//   - MigrateQuery upgrades targets saved with the legacy queryText and
//     queryType fields.
//   - Hidden targets are dropped and template variables ($name, ${name:fmt},
//     [[name]]) are resolved in the SQL.
//   - The Engine executes the targets against Presto, wrapping them in the
//     configured result row limit, and converts rows into data frames. Time
//     series results get a Time field, float values and a wide layout.
//   - AnnotateFrames renders each target's legend format ({{label}}
//     placeholders) into the fields' display names.
//
// # Variable queries
//
// MetricFinder runs a variable query and reduces the first frame to
// MetricFindValue options. Columns named __text and __value are paired;
// otherwise every cell becomes an option. Failures produce no options
// rather than an error.
package prestods
