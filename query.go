package prestods

import (
	"encoding/json"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/pkg/errors"
)

// Format is the shape a query result is returned in.
type Format string

const (
	// FormatTimeSeries returns wide time series frames.
	FormatTimeSeries Format = "time_series"
	// FormatTable returns the result set as-is.
	FormatTable Format = "table"
)

// legacyTimeSeriesType is the queryType value older dashboards stored for
// time series panels.
const legacyTimeSeriesType = "timeseries"

// Query is the model the query editor stores for every panel target.
type Query struct {
	RefID        string `json:"refId"`
	RawSQL       string `json:"rawSql"`
	Format       Format `json:"format"`
	LegendFormat string `json:"legendFormat,omitempty"`
	Hide         bool   `json:"hide,omitempty"`

	// Deprecated fields written by early versions of the plugin. MigrateQuery
	// moves them into RawSQL and Format.
	QueryText string `json:"queryText,omitempty"`
	QueryType string `json:"queryType,omitempty"`
}

// MigrateQuery upgrades a legacy query in place. It is a no-op once the
// legacy fields are gone.
func MigrateQuery(q *Query) {
	if q.QueryText == "" {
		return
	}
	q.RawSQL = q.QueryText
	if q.QueryType == legacyTimeSeriesType {
		q.Format = FormatTimeSeries
	} else {
		q.Format = FormatTable
	}
	q.QueryText = ""
	q.QueryType = ""
}

// ParseQuery decodes a host query, migrates legacy fields and fills the
// refId from the envelope.
func ParseQuery(dq backend.DataQuery) (Query, error) {
	var q Query
	if err := json.Unmarshal(dq.JSON, &q); err != nil {
		return q, newQueryError(QueryErrorTypeInvalid, dq.RefID,
			errors.Wrapf(err, "unable to parse query json %s", dq.JSON))
	}
	MigrateQuery(&q)
	q.RefID = dq.RefID
	return q, nil
}

// resolveFormat validates the format, treating an empty one as time series.
func resolveFormat(f Format) (Format, error) {
	switch Format(strings.TrimSpace(string(f))) {
	case "", FormatTimeSeries:
		return FormatTimeSeries, nil
	case FormatTable:
		return FormatTable, nil
	default:
		return "", errors.Wrapf(ErrInvalidFormat, "%q", f)
	}
}
