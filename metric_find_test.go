package prestods

import (
	"context"
	"fmt"
	"testing"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetcherFunc func(ctx context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error)

func (f fetcherFunc) Fetch(ctx context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
	return f(ctx, req)
}

func strPtr(s string) *string { return &s }

func frameResponse(frames ...*data.Frame) *backend.QueryDataResponse {
	resp := backend.NewQueryDataResponse()
	resp.Responses[MetricFindRefID] = backend.DataResponse{Frames: frames}
	return resp
}

func TestReduceMetricFind(t *testing.T) {
	tests := []struct {
		name   string
		frames data.Frames
		want   []MetricFindValue
	}{
		{
			name: "text and value paired and deduplicated",
			frames: data.Frames{data.NewFrame("",
				data.NewField("__text", nil, []string{"a", "b", "a"}),
				data.NewField("__value", nil, []string{"1", "2", "3"}),
			)},
			want: []MetricFindValue{{Text: "a", Value: strPtr("1")}, {Text: "b", Value: strPtr("2")}},
		},
		{
			name: "single numeric field flattened",
			frames: data.Frames{data.NewFrame("",
				data.NewField("n", nil, []int64{10, 20}),
			)},
			want: []MetricFindValue{{Text: int64(10)}, {Text: int64(20)}},
		},
		{
			name: "every field flattened in order",
			frames: data.Frames{data.NewFrame("",
				data.NewField("a", nil, []string{"x", "y"}),
				data.NewField("b", nil, []string{"y", "z"}),
			)},
			want: []MetricFindValue{{Text: "x"}, {Text: "y"}, {Text: "z"}},
		},
		{
			name: "only __text is flattened",
			frames: data.Frames{data.NewFrame("",
				data.NewField("__text", nil, []string{"a", "b"}),
			)},
			want: []MetricFindValue{{Text: "a"}, {Text: "b"}},
		},
		{
			name: "mismatched lengths truncate to the shorter field",
			frames: data.Frames{data.NewFrame("",
				data.NewField("__text", nil, []string{"a", "b", "c"}),
				data.NewField("__value", nil, []int64{1, 2}),
			)},
			want: []MetricFindValue{{Text: "a", Value: strPtr("1")}, {Text: "b", Value: strPtr("2")}},
		},
		{
			// Null paired cells render as "" rather than the literal "null"
			// string concatenation would give, so a null value never turns
			// into a selectable "null" option.
			name: "null cells",
			frames: data.Frames{data.NewFrame("",
				data.NewField("__text", nil, []*string{strPtr("a"), nil}),
				data.NewField("__value", nil, []*string{nil, strPtr("2")}),
			)},
			want: []MetricFindValue{{Text: "a", Value: strPtr("")}, {Text: "", Value: strPtr("2")}},
		},
		{
			name: "numbers deduplicated across widths",
			frames: data.Frames{data.NewFrame("",
				data.NewField("a", nil, []int64{10, 20}),
				data.NewField("b", nil, []float64{10, 30}),
			)},
			want: []MetricFindValue{{Text: int64(10)}, {Text: int64(20)}, {Text: float64(30)}},
		},
		{
			name: "numbers and strings stay distinct",
			frames: data.Frames{data.NewFrame("",
				data.NewField("a", nil, []int64{10}),
				data.NewField("b", nil, []string{"10"}),
			)},
			want: []MetricFindValue{{Text: int64(10)}, {Text: "10"}},
		},
		{
			name: "only the first frame is used",
			frames: data.Frames{
				data.NewFrame("", data.NewField("a", nil, []string{"x"})),
				data.NewFrame("", data.NewField("a", nil, []string{"y"})),
			},
			want: []MetricFindValue{{Text: "x"}},
		},
		{
			name:   "no frames",
			frames: nil,
			want:   []MetricFindValue{},
		},
		{
			name:   "empty frame",
			frames: data.Frames{data.NewFrame("")},
			want:   []MetricFindValue{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReduceMetricFind(tt.frames))
		})
	}
}

func TestFramesFromResponse(t *testing.T) {
	t.Run("metric find first", func(t *testing.T) {
		resp := backend.NewQueryDataResponse()
		resp.Responses["A"] = backend.DataResponse{Frames: data.Frames{data.NewFrame("a")}}
		resp.Responses[MetricFindRefID] = backend.DataResponse{Frames: data.Frames{data.NewFrame("mf")}}

		frames, err := FramesFromResponse(resp)
		require.NoError(t, err)
		require.Len(t, frames, 2)
		assert.Equal(t, "mf", frames[0].Name)
		assert.Equal(t, "a", frames[1].Name)
	})

	t.Run("error fails decode", func(t *testing.T) {
		resp := backend.NewQueryDataResponse()
		resp.Responses[MetricFindRefID] = backend.DataResponse{Error: fmt.Errorf("syntax error")}

		_, err := FramesFromResponse(resp)
		assert.ErrorContains(t, err, "syntax error")
	})

	t.Run("nil", func(t *testing.T) {
		frames, err := FramesFromResponse(nil)
		require.NoError(t, err)
		assert.Empty(t, frames)
	})
}

func TestMetricFinderFind(t *testing.T) {
	t.Run("sends one templated table query", func(t *testing.T) {
		var got MetricFindRequest
		finder := NewMetricFinder(7, fetcherFunc(func(_ context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
			got = req
			return frameResponse(data.NewFrame("", data.NewField("host", nil, []string{"db1", "db2"}))), nil
		}), nil)

		values := finder.Find(context.Background(), "SELECT host FROM hosts WHERE dc = '$dc'", MetricFindOptions{
			Variable:   "host",
			ScopedVars: ScopedVars{"dc": {Text: "eu", Value: "eu"}},
		})

		assert.Equal(t, []MetricFindValue{{Text: "db1"}, {Text: "db2"}}, values)
		assert.Equal(t, "host", got.RequestID)
		assert.Equal(t, []MetricFindTarget{{
			DatasourceID: 7,
			RefID:        MetricFindRefID,
			RawSQL:       "SELECT host FROM hosts WHERE dc = 'eu'",
			Format:       FormatTable,
		}}, got.Queries)
	})

	t.Run("default request id", func(t *testing.T) {
		var got MetricFindRequest
		finder := NewMetricFinder(1, fetcherFunc(func(_ context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
			got = req
			return frameResponse(), nil
		}), nil)

		assert.Equal(t, []MetricFindValue{}, finder.Find(context.Background(), "SELECT 1", MetricFindOptions{}))
		assert.Equal(t, "tempvar", got.RequestID)
	})

	t.Run("fetch error yields no options", func(t *testing.T) {
		before := promtest.ToFloat64(metricFindFailures)
		finder := NewMetricFinder(1, fetcherFunc(func(context.Context, MetricFindRequest) (*backend.QueryDataResponse, error) {
			return nil, fmt.Errorf("connection refused")
		}), nil)

		values := finder.Find(context.Background(), "SELECT 1", MetricFindOptions{})
		require.NotNil(t, values)
		assert.Empty(t, values)
		assert.Equal(t, before+1, promtest.ToFloat64(metricFindFailures))
	})

	t.Run("zero value finder", func(t *testing.T) {
		finder := &MetricFinder{Fetcher: fetcherFunc(func(_ context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
			assert.Equal(t, "SELECT 'eu'", req.Queries[0].RawSQL)
			return frameResponse(data.NewFrame("", data.NewField("v", nil, []string{"x"}))), nil
		})}

		values := finder.Find(context.Background(), "SELECT '$dc'", MetricFindOptions{ScopedVars: ScopedVars{"dc": {Text: "eu", Value: "eu"}}})
		assert.Equal(t, []MetricFindValue{{Text: "x"}}, values)

		values = (&MetricFinder{}).Find(context.Background(), "SELECT 1", MetricFindOptions{})
		require.NotNil(t, values)
		assert.Empty(t, values)
	})

	t.Run("response error yields no options", func(t *testing.T) {
		finder := NewMetricFinder(1, fetcherFunc(func(context.Context, MetricFindRequest) (*backend.QueryDataResponse, error) {
			resp := backend.NewQueryDataResponse()
			resp.Responses[MetricFindRefID] = backend.DataResponse{Error: fmt.Errorf("table not found")}
			return resp, nil
		}), nil)

		values := finder.Find(context.Background(), "SELECT 1", MetricFindOptions{})
		require.NotNil(t, values)
		assert.Empty(t, values)
	})
}
