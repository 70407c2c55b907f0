package detect

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"deepfakeapi/filemgr"
	"deepfakeapi/mediahost"
	"deepfakeapi/utils"
)

// Predict handles POST /api/predict with a multipart "file".
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	max := h.cfg.Storage.MaxFileSize
	if err := filemgr.ParseUploadForm(w, r, filemgr.BodyLimit(max, 1), max); err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	fh, err := filemgr.FormFile(r, "No file uploaded", "file")
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	uf, path, err := filemgr.Receive(fh, h.cfg.Storage.TempDir, max)
	if err != nil {
		h.logger.Info("upload rejected", zap.String("filename", fh.Filename), zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}
	defer filemgr.RemoveQuietly(path)

	ctx := r.Context()
	fileURL := mediahost.UploadOrEmpty(ctx, h.media, h.logger, path, h.cfg.Media.ImageFolder)

	result, err := h.predictor.Predict(ctx, path)
	if err != nil {
		h.logger.Error("prediction failed", zap.String("path", path), zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}
	h.metrics.RecordPrediction(string(uf.Type), result.Label)

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":    true,
		"file_url":   nullable(fileURL),
		"prediction": result.Label,
		"confidence": result.Confidence,
	})
}
