package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prestodb-contrib/prestods"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	Version, Revision = "1.2.3", "abc"
	t.Cleanup(func() { Version, Revision = "", "" })

	for i := 0; i < 2; i++ {
		out, err := execute(t, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "Version: 1.2.3, Revision: abc")
	}

	a, b := newRootCmd(), newRootCmd()
	versionA, _, err := a.Find([]string{"version"})
	require.NoError(t, err)
	versionB, _, err := b.Find([]string{"version"})
	require.NoError(t, err)
	assert.NotSame(t, versionA, versionB)
	assert.Same(t, a, versionA.Parent())
}

func TestMetricFindCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := backend.NewQueryDataResponse()
		resp.Responses[prestods.MetricFindRefID] = backend.DataResponse{Frames: data.Frames{data.NewFrame("",
			data.NewField("__text", nil, []string{"Web", "DB"}),
			data.NewField("__value", nil, []string{"web", "db"}),
		)}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	out, err := execute(t, "metric-find", "--grafana-url", srv.URL, "--datasource-id", "4", "SELECT 1")
	require.NoError(t, err)

	var values []prestods.MetricFindValue
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	require.Len(t, values, 2)
	assert.Equal(t, "Web", values[0].Text)
	assert.Equal(t, "web", *values[0].Value)
}

func TestMetricFindCommandRequiresSource(t *testing.T) {
	_, err := execute(t, "metric-find", "SELECT 1")
	assert.Error(t, err)
}

func TestQueryCommandRequiresConfig(t *testing.T) {
	_, err := execute(t, "query", "SELECT 1")
	assert.Error(t, err)

	_, err = execute(t, "query", "--config", "/nonexistent/presto.yaml", "SELECT 1")
	assert.Error(t, err)
}
