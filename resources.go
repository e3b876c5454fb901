package prestods

import (
	"encoding/json"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/backend/resource/httpadapter"
)

// metricFindBody is the body of a metricFind resource call.
type metricFindBody struct {
	Query string `json:"query"`
	MetricFindOptions
}

func newResourceHandler(ds *Datasource) backend.CallResourceHandler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metricFind", ds.handleMetricFind)
	return httpadapter.New(mux)
}

func (ds *Datasource) handleMetricFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body metricFindBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, ds.MetricFind(r.Context(), body.Query, body.MetricFindOptions))
}

// writeJSON encodes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.DefaultLogger.Error("failed to encode JSON response", "err", err)
	}
}

// writeError writes an error response and logs it.
func writeError(w http.ResponseWriter, message string, status int) {
	log.DefaultLogger.Warn("resource error", "status", status, "message", message)
	http.Error(w, message, status)
}
