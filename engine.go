package prestods

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/grafana/grafana-plugin-sdk-go/data/sqlutil"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	healthQuery = "SELECT 1"

	// maxConcurrentQueries bounds the queries of one request running at once.
	maxConcurrentQueries = 10
)

var (
	timeColumnNames = []string{"time", "time_sec"}
	// metricColumnTypes are the database types a metric column may have.
	metricColumnTypes = []string{"char", "varchar", "tinytext", "text", "mediumtext", "longtext"}
)

// Engine runs queries against Presto and shapes the results into frames.
type Engine struct {
	db         *sql.DB
	settings   Settings
	converters []sqlutil.Converter
}

// NewEngine creates an engine over an open database handle. Converters in
// extra are matched before the Presto converters.
func NewEngine(db *sql.DB, settings Settings, extra ...sqlutil.Converter) *Engine {
	converters := append(append([]sqlutil.Converter{}, extra...), Converters()...)
	return &Engine{db: db, settings: settings, converters: converters}
}

// Execute implements Executor. Targets run concurrently; a failing target
// only fails its own response.
func (e *Engine) Execute(ctx context.Context, targets []Query) (*backend.QueryDataResponse, error) {
	resp := backend.NewQueryDataResponse()

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxConcurrentQueries)
	for _, q := range targets {
		q := q
		g.Go(func() error {
			dr := e.executeQuery(ctx, q)
			mu.Lock()
			resp.Responses[q.RefID] = dr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckHealth runs a trivial query.
func (e *Engine) CheckHealth(ctx context.Context) error {
	rows, _, err := e.queryRows(ctx, healthQuery)
	if err != nil {
		return err
	}
	return rows.Close()
}

func (e *Engine) executeQuery(ctx context.Context, q Query) (dr backend.DataResponse) {
	logger := log.DefaultLogger.FromContext(ctx)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("query panic", "refId", q.RefID, "error", r)
			dr = backend.DataResponse{Error: newQueryError(QueryErrorTypePanic, q.RefID, fmt.Errorf("%v", r))}
		}
		if qe, ok := dr.Error.(*QueryError); ok {
			queryErrors.WithLabelValues(qe.Type.String()).Inc()
		}
		queryDuration.WithLabelValues(string(q.Format)).Observe(float64(time.Since(start).Milliseconds()))
	}()

	onErr := func(typ QueryErrorType, err error) backend.DataResponse {
		logger.Error("query failed", "refId", q.RefID, "err", err)
		return backend.DataResponse{Error: newQueryError(typ, q.RefID, err)}
	}

	format, err := resolveFormat(q.Format)
	if err != nil {
		return onErr(QueryErrorTypeInvalid, err)
	}
	q.Format = format

	rows, executed, err := e.queryRows(ctx, q.RawSQL)
	if err != nil {
		return onErr(QueryErrorTypeExecution, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn("failed to close rows", "err", err)
		}
	}()

	layout, err := layoutFromRows(rows, format)
	if err != nil {
		return onErr(QueryErrorTypeExecution, err)
	}

	frame, err := sqlutil.FrameFromRows(rows, e.settings.RowLimit, e.converters...)
	if err != nil {
		return onErr(QueryErrorTypeConversion, err)
	}
	frame.RefID = q.RefID
	if frame.Meta == nil {
		frame.Meta = &data.FrameMeta{}
	}
	frame.Meta.ExecutedQueryString = executed

	if frame.Rows() == 0 {
		return backend.DataResponse{Frames: data.Frames{frame}}
	}

	frame, err = shapeFrame(frame, layout, format)
	if err != nil {
		return onErr(QueryErrorTypeConversion, err)
	}
	return backend.DataResponse{Frames: data.Frames{frame}}
}

// queryRows runs sql, wrapped in the result row limit when one is set. It
// returns the statement actually sent.
func (e *Engine) queryRows(ctx context.Context, query string) (*sql.Rows, string, error) {
	if strings.TrimSpace(query) != "" && e.settings.ResultRowLimit > 0 {
		query = fmt.Sprintf("SELECT * FROM ( %s ) query_limit_wrapper limit %d", query, e.settings.ResultRowLimit)
	}
	log.DefaultLogger.FromContext(ctx).Debug("query presto", "query", query)

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, query, errors.Wrap(err, "presto query failed")
	}
	return rows, query, nil
}

// columnLayout records the role of each result column. -1 means absent.
type columnLayout struct {
	timeIndex    int
	timeEndIndex int
	metricIndex  int
}

func layoutFromRows(rows *sql.Rows, format Format) (columnLayout, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return columnLayout{}, err
	}
	names := make([]string, len(types))
	dbTypes := make([]string, len(types))
	for i, ct := range types {
		names[i] = ct.Name()
		dbTypes[i] = ct.DatabaseTypeName()
	}
	return detectColumns(names, dbTypes, format), nil
}

// detectColumns finds the time, time end and metric columns. A column named
// metric wins over the first character-typed column.
func detectColumns(names, dbTypes []string, format Format) columnLayout {
	layout := columnLayout{timeIndex: -1, timeEndIndex: -1, metricIndex: -1}
	namedMetric := false
	for i, name := range names {
		col := strings.ToLower(name)
		if layout.timeIndex == -1 && isTimeColumn(col) {
			layout.timeIndex = i
			continue
		}
		if format == FormatTable && col == "timeend" {
			layout.timeEndIndex = i
			continue
		}
		switch {
		case col == "metric":
			layout.metricIndex = i
			namedMetric = true
		case !namedMetric && layout.metricIndex == -1 && isMetricType(dbTypes[i]):
			layout.metricIndex = i
		}
	}
	return layout
}

func isTimeColumn(col string) bool {
	for _, name := range timeColumnNames {
		if col == name {
			return true
		}
	}
	return false
}

// isMetricType matches character types, ignoring case and length
// parameters such as varchar(32).
func isMetricType(dbType string) bool {
	t := strings.ToLower(dbType)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)
	for _, mt := range metricColumnTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// shapeFrame converts time columns and, for time series, values and the
// long-to-wide pivot.
func shapeFrame(frame *data.Frame, layout columnLayout, format Format) (*data.Frame, error) {
	if layout.timeIndex != -1 {
		if err := convertTimeColumn(frame, layout.timeIndex); err != nil {
			return nil, errors.Wrap(err, "failed to convert time column")
		}
	}
	if layout.timeEndIndex != -1 {
		if err := convertTimeColumn(frame, layout.timeEndIndex); err != nil {
			return nil, errors.Wrap(err, "failed to convert timeend column")
		}
	}
	if format != FormatTimeSeries {
		return frame, nil
	}

	if layout.timeIndex == -1 {
		return nil, ErrNoTimeColumn
	}
	// Grafana pre-v8 expects the time field to be called Time.
	frame.Fields[layout.timeIndex].Name = data.TimeSeriesTimeFieldName

	for i, field := range frame.Fields {
		if i == layout.timeIndex || i == layout.metricIndex || isString(field.Type()) {
			continue
		}
		if err := convertValueColumn(frame, i); err != nil {
			return nil, errors.Wrap(err, "convert value to float failed")
		}
	}

	if frame.TimeSeriesSchema().Type != data.TimeSeriesTypeLong {
		return frame, nil
	}
	wide, err := data.LongToWide(frame, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert long to wide series")
	}
	wide.RefID = frame.RefID
	wide.Meta = frame.Meta

	// A single metric column used to name series on its own. LongToWide turns
	// it into a label; move it back to the field name.
	if len(frame.Fields) == 3 {
		for _, field := range wide.Fields {
			if name, ok := field.Labels["metric"]; ok && len(field.Labels) == 1 {
				field.Name = name
				field.Labels = nil
			}
		}
	}
	return wide, nil
}
