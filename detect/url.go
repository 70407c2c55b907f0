package detect

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"deepfakeapi/mediahost"
	"deepfakeapi/urlfetch"
	"deepfakeapi/utils"
)

const urlBodyLimit = 64 << 10

// AnalyzeURL handles POST /api/analyze-url with a JSON body {"url": ...}.
func (h *Handler) AnalyzeURL(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		URL string `json:"url"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, urlBodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "No URL provided")
		return
	}
	if err := urlfetch.ValidateURL(req.URL); err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	ctx := r.Context()
	path, err := h.fetcher.Download(ctx, req.URL)
	if err != nil {
		h.logger.Info("url download failed", zap.String("url", req.URL), zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}

	result, err := h.predictor.Predict(ctx, path)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	h.metrics.RecordPrediction("url", result.Label)

	analyzedURL := mediahost.UploadOrEmpty(ctx, h.media, h.logger, path, h.cfg.Media.URLFolder)

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":            true,
		"source_url":         req.URL,
		"prediction":         result.Label,
		"confidence":         result.Confidence,
		"analyzed_image_url": nullable(analyzedURL),
	})
}
