package prestods

import (
	"net/url"
	"testing"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		s, err := LoadSettings(backend.DataSourceInstanceSettings{
			BasicAuthUser: "grafana",
			JSONData: []byte(`{
				"httpScheme": "HTTPS",
				"host": "presto:8080",
				"catalog": "hive",
				"schema": "default",
				"queryMaxExecutionSeconds": 120,
				"rowLimit": "5000",
				"resultRowLimit": 0,
				"customParams": [{"name": "source", "value": "grafana"}]
			}`),
			DecryptedSecureJSONData: map[string]string{"basicAuthPassword": "secret"},
		})
		require.NoError(t, err)
		assert.Equal(t, Settings{
			HTTPScheme:               "https",
			Host:                     "presto:8080",
			Catalog:                  "hive",
			Schema:                   "default",
			User:                     "grafana",
			Password:                 "secret",
			QueryMaxExecutionSeconds: 120,
			RowLimit:                 5000,
			ResultRowLimit:           0,
			CustomParams:             []CustomParam{{Name: "source", Value: "grafana"}},
		}, s)
	})

	t.Run("defaults", func(t *testing.T) {
		s, err := LoadSettings(backend.DataSourceInstanceSettings{
			User:     "fallback",
			JSONData: []byte(`{"host":"presto:8080"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultHTTPScheme, s.HTTPScheme)
		assert.Equal(t, "fallback", s.User)
		assert.Equal(t, int64(DefaultQueryMaxExecutionSeconds), s.QueryMaxExecutionSeconds)
		assert.Equal(t, int64(DefaultRowLimit), s.RowLimit)
		assert.Equal(t, int64(DefaultResultRowLimit), s.ResultRowLimit)
	})

	t.Run("invalid numbers reset", func(t *testing.T) {
		s, err := LoadSettings(backend.DataSourceInstanceSettings{
			JSONData: []byte(`{"host":"presto:8080","queryMaxExecutionSeconds":"abc","rowLimit":-5,"resultRowLimit":2.5}`),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(DefaultQueryMaxExecutionSeconds), s.QueryMaxExecutionSeconds)
		assert.Equal(t, int64(DefaultRowLimit), s.RowLimit)
		assert.Equal(t, int64(DefaultResultRowLimit), s.ResultRowLimit)
	})

	t.Run("missing host", func(t *testing.T) {
		_, err := LoadSettings(backend.DataSourceInstanceSettings{JSONData: []byte(`{}`)})
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := LoadSettings(backend.DataSourceInstanceSettings{JSONData: []byte(`{`)})
		assert.ErrorIs(t, err, ErrInvalidSettings)
	})
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		min  int64
		want int64
	}{
		{"", 1, 7},
		{"10", 1, 10},
		{`"10"`, 1, 10},
		{`" 10 "`, 1, 10},
		{"0", 1, 7},
		{"0", 0, 0},
		{"-1", 0, 7},
		{"1.5", 1, 7},
		{"1e3", 1, 1000},
		{`"x"`, 1, 7},
		{"null", 1, 7},
		{"true", 1, 7},
		{"{", 1, 7},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLimit([]byte(tt.raw), 7, tt.min))
		})
	}
}

func TestSettingsDSN(t *testing.T) {
	s := DefaultSettings()
	s.HTTPScheme = "https"
	s.Host = "presto:8443"
	s.Catalog = "hive"
	s.Schema = "web"
	s.User = "grafana"
	s.Password = "p@ss"
	s.CustomParams = []CustomParam{{Name: "source", Value: "dash"}, {Name: "", Value: "ignored"}}

	u, err := url.Parse(s.DSN("ds-1"))
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "presto:8443", u.Host)
	assert.Equal(t, "grafana", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss", pass)

	q := u.Query()
	assert.Equal(t, "hive", q.Get("catalog"))
	assert.Equal(t, "web", q.Get("schema"))
	assert.Equal(t, "ds-1", q.Get("custom_client"))
	assert.Equal(t, "query_max_execution_time=60s", q.Get("session_properties"))
	assert.Equal(t, "dash", q.Get("source"))
	assert.Len(t, q, 5)

	redacted, err := url.Parse(s.redactedDSN("ds-1"))
	require.NoError(t, err)
	pass, _ = redacted.User.Password()
	assert.Equal(t, "xxxxx", pass)
	assert.Equal(t, "p@ss", s.Password)
}

func TestParseInstanceSettings(t *testing.T) {
	yml := []byte(`
id: 4
uid: presto-prod
name: prod
basicAuthUser: grafana
jsonData:
  host: presto:8080
  catalog: hive
  resultRowLimit: 500
  customParams:
    - name: source
      value: cli
secureJsonData:
  basicAuthPassword: secret
`)
	is, err := ParseInstanceSettings(yml)
	require.NoError(t, err)
	assert.Equal(t, int64(4), is.ID)
	assert.Equal(t, "presto-prod", is.UID)
	assert.Equal(t, "prod", is.Name)
	assert.True(t, is.BasicAuthEnabled)

	s, err := LoadSettings(is)
	require.NoError(t, err)
	assert.Equal(t, "presto:8080", s.Host)
	assert.Equal(t, "hive", s.Catalog)
	assert.Equal(t, "grafana", s.User)
	assert.Equal(t, "secret", s.Password)
	assert.Equal(t, int64(500), s.ResultRowLimit)
	assert.Equal(t, []CustomParam{{Name: "source", Value: "cli"}}, s.CustomParams)

	is, err = ParseInstanceSettings([]byte(`jsonData: {host: "h:1"}`))
	require.NoError(t, err)
	assert.Equal(t, "presto", is.Name)

	_, err = ParseInstanceSettings([]byte("jsonData: ["))
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
