// Package api exposes the collection daemon over HTTP: health, metrics,
// on-demand collection runs, and report generation against the live
// ledger.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inteltool/inteltool/internal/config"
	"github.com/inteltool/inteltool/internal/correlate"
	"github.com/inteltool/inteltool/internal/feeds"
	"github.com/inteltool/inteltool/internal/fetch"
	"github.com/inteltool/inteltool/internal/ledger"
	"github.com/inteltool/inteltool/internal/pipeline"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pipe   *pipeline.Pipeline
	loader *config.Loader
	led    *ledger.Ledger
	client *fetch.Client
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(pipe *pipeline.Pipeline, loader *config.Loader, led *ledger.Ledger, client *fetch.Client) http.Handler {
	h := &Handler{pipe: pipe, loader: loader, led: led, client: client, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/collect", h.collect)
	h.mux.HandleFunc("GET /v1/report", h.report)
	h.mux.HandleFunc("GET /v1/config", h.showConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/collect — run the active collectors once, synchronously.
func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	collectors, err := feeds.Build(cfg, h.client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.pipe.Run(r.Context(), collectors)
	if err != nil {
		var afs *pipeline.AllFeedsSkippedError
		if errors.As(err, &afs) {
			writeError(w, http.StatusPreconditionFailed, afs.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":    result.RunID,
		"collected": result.Collected,
		"added":     result.Added,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
}

// GET /v1/report — correlate the ledger for the requested scope.
// Query params: date, type, source, value, top, all.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := correlate.Options{
		Date:            q.Get("date"),
		Type:            q.Get("type"),
		Source:          q.Get("source"),
		Value:           q.Get("value"),
		AllHistory:      q.Get("all") == "true",
		ExpectedSources: h.loader.Config().ExpectedFeeds,
	}
	if top := q.Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		opts.TopCount = n
	}
	if opts.Date == "" && !opts.AllHistory {
		writeError(w, http.StatusBadRequest, "date is required unless all=true")
		return
	}

	records, err := h.led.Records()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rep, err := correlate.Correlate(records, opts)
	if err != nil {
		var ese *correlate.EmptyScopeError
		if errors.As(err, &ese) {
			writeError(w, http.StatusNotFound, ese.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /v1/config — current config with credentials redacted.
func (h *Handler) showConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	keys := make(map[string]string, len(cfg.APIKeys))
	for feed, key := range cfg.APIKeys {
		if key != "" {
			keys[feed] = "[redacted]"
		} else {
			keys[feed] = ""
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_collectors":  cfg.ActiveCollectors,
		"expected_feeds":     cfg.ExpectedFeeds,
		"confidence_minimum": cfg.ConfidenceMinimum,
		"limit_details":      cfg.LimitDetails,
		"max_age_in_days":    cfg.MaxAgeInDays,
		"ledger_path":        cfg.LedgerPath,
		"api_keys":           keys,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
