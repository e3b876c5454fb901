package prestods

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/instancemgmt"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data/sqlutil"
	"github.com/pkg/errors"
	"github.com/prestodb/presto-go-client/presto"
)

// PluginID is the id the plugin is registered under in plugin.json.
const PluginID = "grafana-presto-datasource"

// Make sure Datasource implements the required interfaces.
var (
	_ backend.QueryDataHandler      = (*Datasource)(nil)
	_ backend.CheckHealthHandler    = (*Datasource)(nil)
	_ backend.CallResourceHandler   = (*Datasource)(nil)
	_ instancemgmt.InstanceDisposer = (*Datasource)(nil)
)

// Datasource is one configured Presto datasource.
type Datasource struct {
	name      string
	settings  Settings
	db        *sql.DB
	clientKey string

	engine    *Engine
	pipeline  *Pipeline
	finder    *MetricFinder
	resources backend.CallResourceHandler
}

// NewDatasource is the instance factory handed to the plugin manager.
func NewDatasource(ctx context.Context, s backend.DataSourceInstanceSettings) (instancemgmt.Instance, error) {
	settings, err := LoadSettings(s)
	if err != nil {
		return nil, err
	}

	// Instances are replaced before the old one is disposed, so the client
	// key must not be shared between generations.
	clientKey := s.Name + "-" + uuid.NewString()
	if err := presto.RegisterCustomClient(clientKey, &http.Client{}); err != nil {
		return nil, errors.Wrap(err, "register presto client")
	}

	db, err := sql.Open("presto", settings.DSN(clientKey))
	if err != nil {
		presto.DeregisterCustomClient(clientKey)
		return nil, errors.Wrap(err, "open presto connection")
	}

	log.DefaultLogger.FromContext(ctx).Info("create datasource", "datasource", s.Name, "url", settings.redactedDSN(clientKey))
	return newDatasource(s, settings, db, clientKey), nil
}

// newDatasource wires a datasource around an open database handle. extra
// converters are handed to the engine.
func newDatasource(s backend.DataSourceInstanceSettings, settings Settings, db *sql.DB, clientKey string, extra ...sqlutil.Converter) *Datasource {
	ds := &Datasource{
		name:      s.Name,
		settings:  settings,
		db:        db,
		clientKey: clientKey,
		engine:    NewEngine(db, settings, extra...),
	}
	templates := NewVariableTemplater(nil)
	ds.pipeline = NewPipeline(ds.engine, templates)
	ds.finder = NewMetricFinder(s.ID, QueryDataFetcher{Handler: ds}, templates)
	ds.resources = newResourceHandler(ds)
	return ds
}

// Dispose implements instancemgmt.InstanceDisposer.
func (ds *Datasource) Dispose() {
	log.DefaultLogger.Info("dispose datasource", "datasource", ds.name)
	if err := ds.db.Close(); err != nil {
		log.DefaultLogger.Warn("failed to close database", "datasource", ds.name, "err", err)
	}
	if ds.clientKey != "" {
		presto.DeregisterCustomClient(ds.clientKey)
	}
}

// QueryData implements backend.QueryDataHandler. Queries that cannot be
// decoded fail individually; the rest run through the pipeline.
func (ds *Datasource) QueryData(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	failed := map[string]backend.DataResponse{}
	targets := make([]Query, 0, len(req.Queries))
	for _, dq := range req.Queries {
		q, err := ParseQuery(dq)
		if err != nil {
			failed[dq.RefID] = backend.DataResponse{Error: err}
			continue
		}
		targets = append(targets, q)
	}

	var vars ScopedVars
	if len(req.Queries) > 0 {
		vars = BuiltinScopedVars(req.Queries[0])
	}

	resp, err := ds.pipeline.Run(ctx, Request{Targets: targets, ScopedVars: vars})
	if err != nil {
		log.DefaultLogger.FromContext(ctx).Error("query data failed", "datasource", ds.name, "err", err)
		return nil, err
	}
	for refID, dr := range failed {
		resp.Responses[refID] = dr
	}
	return resp, nil
}

// CheckHealth implements backend.CheckHealthHandler.
func (ds *Datasource) CheckHealth(ctx context.Context, _ *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	if err := ds.engine.CheckHealth(ctx); err != nil {
		log.DefaultLogger.FromContext(ctx).Error("health check failed", "datasource", ds.name, "err", err)
		return &backend.CheckHealthResult{
			Status:  backend.HealthStatusError,
			Message: err.Error(),
		}, nil
	}
	return &backend.CheckHealthResult{
		Status:  backend.HealthStatusOk,
		Message: "OK",
	}, nil
}

// CallResource implements backend.CallResourceHandler.
func (ds *Datasource) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	return ds.resources.CallResource(ctx, req, sender)
}

// MetricFind resolves variable options for query.
func (ds *Datasource) MetricFind(ctx context.Context, query string, opts MetricFindOptions) []MetricFindValue {
	return ds.finder.Find(ctx, query, opts)
}
