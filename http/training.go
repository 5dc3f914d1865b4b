package http

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"cytodx/pipeline"
)

type trainResponse struct {
	Result   *pipeline.Result `json:"result"`
	Reloaded bool             `json:"reloaded"`
}

// handleTrain runs one training job synchronously. The new pair is only served after a
// reload, which the caller may request with ?reload=true.
func (h *handlers) handleTrain(w http.ResponseWriter, r *http.Request) {
	reload := false
	if raw := r.URL.Query().Get("reload"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "reload must be a boolean"})
			return
		}
		reload = v
	}

	job, err := h.deps.TrainJob()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.deps.Runner.TryRun(r.Context(), job)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := trainResponse{Result: res}
	if reload {
		if _, err := h.deps.Registry.Reload(); err != nil {
			h.deps.Logger.Warn("reload after training failed", zap.String("version", res.Version), zap.Error(err))
		} else {
			resp.Reloaded = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
