package prestods

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/pkg/errors"
)

// QueryAPI is the host endpoint metric-find requests are posted to.
const QueryAPI = "/api/ds/query"

// HTTPFetcher posts metric-find requests to a Grafana server.
type HTTPFetcher struct {
	// URL is the Grafana root URL, e.g. http://localhost:3000.
	URL string
	// Token is a service account token; it takes precedence over basic auth.
	Token    string
	Username string
	Password string
	// OrgID selects the organization when non-zero.
	OrgID int64

	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with a client bounded by timeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
	resp := backend.NewQueryDataResponse()

	rb := requests.
		URL(strings.TrimSuffix(f.URL, "/")+QueryAPI).
		Method(http.MethodPost).
		Accept("application/json").
		BodyJSON(&req).
		ToJSON(resp)

	if f.Client != nil {
		rb.Client(f.Client)
	}
	switch {
	case f.Token != "":
		rb.Bearer(f.Token)
	case f.Username != "" && f.Password != "":
		rb.BasicAuth(f.Username, f.Password)
	}
	if f.OrgID != 0 {
		rb.Header("X-Grafana-Org-Id", strconv.FormatInt(f.OrgID, 10))
	}

	if err := rb.Fetch(ctx); err != nil {
		return nil, errors.Wrapf(err, "post %s", QueryAPI)
	}
	return resp, nil
}

// QueryDataFetcher dispatches metric-find requests in-process to a query
// handler, bypassing the host.
type QueryDataFetcher struct {
	Handler       backend.QueryDataHandler
	PluginContext backend.PluginContext
}

// Fetch implements Fetcher.
func (f QueryDataFetcher) Fetch(ctx context.Context, req MetricFindRequest) (*backend.QueryDataResponse, error) {
	qdr := &backend.QueryDataRequest{PluginContext: f.PluginContext}
	for _, t := range req.Queries {
		b, err := json.Marshal(Query{RefID: t.RefID, RawSQL: t.RawSQL, Format: t.Format})
		if err != nil {
			return nil, err
		}
		qdr.Queries = append(qdr.Queries, backend.DataQuery{RefID: t.RefID, JSON: b})
	}
	return f.Handler.QueryData(ctx, qdr)
}
