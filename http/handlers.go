package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cytodx/dataset"
	"cytodx/errdefs"
	"cytodx/ml"
	"cytodx/monitoring"
	"cytodx/pipeline"
	"cytodx/serving"
)

const defaultRunsLimit = 20

type handlers struct {
	deps Deps
}

type errorBody struct {
	Error string `json:"error"`
}

type modelInfo struct {
	Version       string       `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	Algorithm     ml.Algorithm `json:"algorithm"`
	Seed          int64        `json:"seed"`
	SplitFraction float64      `json:"split_fraction"`
	Source        string       `json:"source,omitempty"`
	DataPoints    int          `json:"data_points"`
	Metrics       ml.Metrics   `json:"metrics"`
}

type schemaInfo struct {
	FeatureCount int               `json:"feature_count"`
	Features     []string          `json:"features"`
	Labels       map[string]string `json:"labels"`
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/schema", h.handleSchema)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("POST /api/model/reload", h.handleReload)
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	if h.deps.Runs != nil {
		mux.HandleFunc("GET /api/runs", h.handleRuns)
	}
	if h.deps.Runner != nil && h.deps.TrainJob != nil {
		mux.HandleFunc("POST /api/train", h.handleTrain)
	}
	if h.deps.Stream != nil {
		mux.Handle("GET /api/ws/predict", h.deps.Stream)
	}
	if h.deps.Metrics != nil {
		mux.Handle("GET /metrics", h.deps.Metrics.Handler())
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema := dataset.DefaultSchema()
	writeJSON(w, http.StatusOK, schemaInfo{
		FeatureCount: schema.FeatureCount(),
		Features:     schema.FeatureNames(),
		Labels: map[string]string{
			schema.Codec.Benign:    dataset.Benign.String(),
			schema.Codec.Malignant: dataset.Malignant.String(),
		},
	})
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Registry.Current()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(p))
}

func (h *handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Registry.Reload()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(p))
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req serving.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.deps.Metrics.ObservePredictionError("decode")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	p, err := h.deps.Registry.Current()
	if err != nil {
		h.deps.Metrics.ObservePredictionError(monitoring.ErrorReason(err))
		h.writeError(w, r, err)
		return
	}
	pred, err := p.Serve(req)
	if err != nil {
		h.deps.Metrics.ObservePredictionError(monitoring.ErrorReason(err))
		h.writeError(w, r, err)
		return
	}
	h.deps.Metrics.ObservePrediction(pred.Label.String())
	writeJSON(w, http.StatusOK, pred)
}

func (h *handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := h.deps.Runs.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func describe(p *serving.Predictor) modelInfo {
	meta := p.Metadata()
	return modelInfo{
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		Algorithm:     meta.Algorithm,
		Seed:          meta.Seed,
		SplitFraction: meta.SplitFraction,
		Source:        meta.Source,
		DataPoints:    meta.DataPoints,
		Metrics:       meta.Metrics,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrArtifactNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, pipeline.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status. Server-side failures are logged here and nowhere else.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.deps.Logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
