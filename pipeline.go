package prestods

import (
	"context"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
)

// Executor runs prepared queries and returns one response per refId.
type Executor interface {
	Execute(ctx context.Context, targets []Query) (*backend.QueryDataResponse, error)
}

// Request is one dispatch from the host.
type Request struct {
	Targets    []Query
	ScopedVars ScopedVars
}

// Pipeline prepares queries, executes them and annotates the response.
type Pipeline struct {
	executor  Executor
	templates TemplateService
}

// NewPipeline creates a pipeline. A nil templates uses a VariableTemplater
// without globals.
func NewPipeline(executor Executor, templates TemplateService) *Pipeline {
	if templates == nil {
		templates = NewVariableTemplater(nil)
	}
	return &Pipeline{executor: executor, templates: templates}
}

// Run migrates and templates the visible targets, awaits the executor and
// returns an annotated copy of its response. Executor errors are returned
// unchanged.
func (p *Pipeline) Run(ctx context.Context, req Request) (*backend.QueryDataResponse, error) {
	targets := p.Prepare(req)
	if len(targets) == 0 {
		return backend.NewQueryDataResponse(), nil
	}

	resp, err := p.executor.Execute(ctx, targets)
	if err != nil {
		return nil, err
	}
	return AnnotateResponse(resp, targets, req.ScopedVars, p.templates), nil
}

// Prepare returns the targets ready for dispatch: migrated, visible, with a
// format and with templates applied to the SQL. The request is not modified.
func (p *Pipeline) Prepare(req Request) []Query {
	targets := make([]Query, 0, len(req.Targets))
	for _, t := range req.Targets {
		MigrateQuery(&t)
		if t.Hide {
			continue
		}
		if t.Format == "" {
			t.Format = FormatTimeSeries
		}
		t.RawSQL = p.templates.Replace(t.RawSQL, req.ScopedVars)
		targets = append(targets, t)
	}
	return targets
}
