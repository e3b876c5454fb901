package prestods

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/pkg/errors"
)

const (
	// MetricFindRefID is the refId every metric-find request is sent with.
	MetricFindRefID = "metricFindQuery"

	// metricFindTextField and metricFindValueField name the columns a
	// variable query selects to provide separate labels and values.
	metricFindTextField  = "__text"
	metricFindValueField = "__value"

	defaultMetricFindRequestID = "tempvar"
)

// MetricFindValue is one option of a template variable. Value is nil when the
// query had no separate value column.
type MetricFindValue struct {
	Text  any     `json:"text"`
	Value *string `json:"value,omitempty"`
}

// MetricFindTarget is the single query of a metric-find request.
type MetricFindTarget struct {
	DatasourceID int64  `json:"datasourceId"`
	RefID        string `json:"refId"`
	RawSQL       string `json:"rawSql"`
	Format       Format `json:"format"`
}

// MetricFindRequest is the body posted to the host's query endpoint.
type MetricFindRequest struct {
	Queries []MetricFindTarget `json:"queries"`

	// RequestID identifies the request to the host for cancellation; it is
	// not part of the body.
	RequestID string `json:"-"`
}

// Fetcher executes a metric-find request against the host.
type Fetcher interface {
	Fetch(ctx context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error)
}

// MetricFindOptions carries the variable being refreshed and its scope.
type MetricFindOptions struct {
	Variable   string     `json:"variable,omitempty"`
	ScopedVars ScopedVars `json:"scopedVars,omitempty"`
}

// MetricFinder populates template variable options from SQL queries.
type MetricFinder struct {
	DatasourceID int64
	Fetcher      Fetcher
	Templates    TemplateService
}

// NewMetricFinder creates a metric finder for the datasource with the given id.
func NewMetricFinder(datasourceID int64, fetcher Fetcher, templates TemplateService) *MetricFinder {
	if templates == nil {
		templates = NewVariableTemplater(nil)
	}
	return &MetricFinder{
		DatasourceID: datasourceID,
		Fetcher:      fetcher,
		Templates:    templates,
	}
}

// Find runs query and reduces its result to variable options. It never
// fails: fetch or response errors yield an empty list.
func (m *MetricFinder) Find(ctx context.Context, query string, opts MetricFindOptions) []MetricFindValue {
	requestID := defaultMetricFindRequestID
	if opts.Variable != "" {
		requestID = opts.Variable
	}
	if m.Fetcher == nil {
		metricFindFailures.Inc()
		log.DefaultLogger.Warn("metric find query has no fetcher", "requestId", requestID)
		return []MetricFindValue{}
	}
	templates := m.Templates
	if templates == nil {
		templates = NewVariableTemplater(nil)
	}

	req := MetricFindRequest{
		RequestID: requestID,
		Queries: []MetricFindTarget{{
			DatasourceID: m.DatasourceID,
			RefID:        MetricFindRefID,
			RawSQL:       templates.Replace(query, opts.ScopedVars),
			Format:       FormatTable,
		}},
	}

	resp, err := m.Fetcher.Fetch(ctx, req)
	if err != nil {
		metricFindFailures.Inc()
		log.DefaultLogger.Warn("metric find query failed", "requestId", requestID, "err", err)
		return []MetricFindValue{}
	}

	frames, err := FramesFromResponse(resp)
	if err != nil {
		metricFindFailures.Inc()
		log.DefaultLogger.Warn("metric find query returned an error", "requestId", requestID, "err", err)
		return []MetricFindValue{}
	}
	return ReduceMetricFind(frames)
}

// FramesFromResponse flattens a response envelope into frames, metric-find
// results first and the rest ordered by refId. A response carrying an error
// fails the whole decode.
func FramesFromResponse(resp *backend.QueryDataResponse) (data.Frames, error) {
	if resp == nil {
		return nil, nil
	}
	refIDs := make([]string, 0, len(resp.Responses))
	for refID := range resp.Responses {
		refIDs = append(refIDs, refID)
	}
	sort.Slice(refIDs, func(i, j int) bool {
		if (refIDs[i] == MetricFindRefID) != (refIDs[j] == MetricFindRefID) {
			return refIDs[i] == MetricFindRefID
		}
		return refIDs[i] < refIDs[j]
	})

	var frames data.Frames
	for _, refID := range refIDs {
		dr := resp.Responses[refID]
		if dr.Error != nil {
			return nil, errors.Wrapf(dr.Error, "query %s", refID)
		}
		frames = append(frames, dr.Frames...)
	}
	return frames, nil
}

// ReduceMetricFind turns the first frame into deduplicated options. With
// __text and __value fields the values are paired; otherwise every cell of
// every field becomes a text-only option.
func ReduceMetricFind(frames data.Frames) []MetricFindValue {
	if len(frames) == 0 || frames[0] == nil {
		return []MetricFindValue{}
	}
	frame := frames[0]

	var values []MetricFindValue
	textField, valueField := findField(frame, metricFindTextField), findField(frame, metricFindValueField)
	if textField != nil && valueField != nil {
		n := textField.Len()
		if valueField.Len() < n {
			n = valueField.Len()
		}
		values = make([]MetricFindValue, 0, n)
		for i := 0; i < n; i++ {
			value := stringAt(valueField, i)
			values = append(values, MetricFindValue{Text: stringAt(textField, i), Value: &value})
		}
	} else {
		for _, field := range frame.Fields {
			for i := 0; i < field.Len(); i++ {
				v, _ := field.ConcreteAt(i)
				values = append(values, MetricFindValue{Text: v})
			}
		}
	}
	return dedupByText(values)
}

func dedupByText(values []MetricFindValue) []MetricFindValue {
	seen := make(map[any]struct{}, len(values))
	out := make([]MetricFindValue, 0, len(values))
	for _, v := range values {
		key := dedupKey(v.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// dedupKey maps a cell to a comparable map key. Numbers compare by value
// whatever their width, raw JSON cells by content.
func dedupKey(v any) any {
	if raw, ok := v.(json.RawMessage); ok {
		return "json:" + string(raw)
	}
	if f, ok := toFloat64(v); ok {
		return f
	}
	return v
}

func findField(frame *data.Frame, name string) *data.Field {
	for _, f := range frame.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// stringAt stringifies a cell; null cells become "".
func stringAt(field *data.Field, i int) string {
	v, ok := field.ConcreteAt(i)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.RawMessage:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
