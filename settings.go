package prestods

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/pkg/errors"
)

// Defaults for numeric settings. Out-of-range or non-numeric input resets to
// these values.
const (
	DefaultHTTPScheme               = "http"
	DefaultQueryMaxExecutionSeconds = 60
	DefaultRowLimit                 = 1_000_000
	DefaultResultRowLimit           = 100_000
)

// passwordKey is the secure JSON key holding the basic auth password.
const passwordKey = "basicAuthPassword"

// CustomParam is an extra URL parameter appended to the connection string.
type CustomParam struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Settings is the decoded configuration of one datasource instance.
type Settings struct {
	HTTPScheme string
	Host       string
	Catalog    string
	Schema     string
	User       string
	Password   string

	// QueryMaxExecutionSeconds bounds execution time on the Presto side.
	QueryMaxExecutionSeconds int64
	// RowLimit caps the rows read into a frame.
	RowLimit int64
	// ResultRowLimit wraps every query in a LIMIT; 0 disables it.
	ResultRowLimit int64

	CustomParams []CustomParam
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings() Settings {
	return Settings{
		HTTPScheme:               DefaultHTTPScheme,
		QueryMaxExecutionSeconds: DefaultQueryMaxExecutionSeconds,
		RowLimit:                 DefaultRowLimit,
		ResultRowLimit:           DefaultResultRowLimit,
	}
}

// jsonSettings mirrors the config editor's jsonData. Numeric fields stay raw
// so that strings and garbage can be reset instead of failing the decode.
type jsonSettings struct {
	HTTPScheme               string          `json:"httpScheme"`
	Host                     string          `json:"host"`
	Catalog                  string          `json:"catalog"`
	Schema                   string          `json:"schema"`
	QueryMaxExecutionSeconds json.RawMessage `json:"queryMaxExecutionSeconds"`
	RowLimit                 json.RawMessage `json:"rowLimit"`
	ResultRowLimit           json.RawMessage `json:"resultRowLimit"`
	CustomParams             []CustomParam   `json:"customParams"`
}

// LoadSettings decodes instance settings.
func LoadSettings(s backend.DataSourceInstanceSettings) (Settings, error) {
	settings := DefaultSettings()

	var js jsonSettings
	if len(s.JSONData) > 0 {
		if err := json.Unmarshal(s.JSONData, &js); err != nil {
			return settings, errors.Wrapf(ErrInvalidSettings, "unable to parse settings json %s: %v", s.JSONData, err)
		}
	}

	if scheme := strings.TrimSpace(js.HTTPScheme); scheme != "" {
		settings.HTTPScheme = strings.ToLower(scheme)
	}
	settings.Host = strings.TrimSpace(js.Host)
	settings.Catalog = js.Catalog
	settings.Schema = js.Schema
	settings.User = s.BasicAuthUser
	if settings.User == "" {
		settings.User = s.User
	}
	settings.Password = s.DecryptedSecureJSONData[passwordKey]
	settings.QueryMaxExecutionSeconds = parseLimit(js.QueryMaxExecutionSeconds, DefaultQueryMaxExecutionSeconds, 1)
	settings.RowLimit = parseLimit(js.RowLimit, DefaultRowLimit, 1)
	settings.ResultRowLimit = parseLimit(js.ResultRowLimit, DefaultResultRowLimit, 0)
	settings.CustomParams = js.CustomParams

	if settings.Host == "" {
		return settings, errors.Wrap(ErrInvalidSettings, "host is required")
	}
	return settings, nil
}

// parseLimit reads a JSON number or numeric string. Missing, non-numeric,
// fractional or below-min values yield def.
func parseLimit(raw json.RawMessage, def, min int64) int64 {
	if len(raw) == 0 {
		return def
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return def
	}

	var n int64
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt64 || t < math.MinInt64 {
			return def
		}
		n = int64(t)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return def
		}
		n = parsed
	default:
		return def
	}
	if n < min {
		return def
	}
	return n
}

// DSN builds the presto-go-client connection string. clientKey names the
// HTTP client registered with the driver for this instance.
func (s Settings) DSN(clientKey string) string {
	u := url.URL{
		Scheme: s.HTTPScheme,
		Host:   s.Host,
	}
	switch {
	case s.User != "" && s.Password != "":
		u.User = url.UserPassword(s.User, s.Password)
	case s.User != "":
		u.User = url.User(s.User)
	}

	params := url.Values{}
	if s.Catalog != "" {
		params.Set("catalog", s.Catalog)
	}
	if s.Schema != "" {
		params.Set("schema", s.Schema)
	}
	if clientKey != "" {
		params.Set("custom_client", clientKey)
	}
	params.Set("session_properties", fmt.Sprintf("query_max_execution_time=%ds", s.QueryMaxExecutionSeconds))
	for _, p := range s.CustomParams {
		if p.Name == "" {
			continue
		}
		params.Add(p.Name, p.Value)
	}
	u.RawQuery = params.Encode()
	return u.String()
}

// redactedDSN is DSN with the password masked, for logging.
func (s Settings) redactedDSN(clientKey string) string {
	if s.Password == "" {
		return s.DSN(clientKey)
	}
	s.Password = "xxxxx"
	return s.DSN(clientKey)
}
