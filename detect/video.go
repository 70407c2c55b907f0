package detect

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"deepfakeapi/filemgr"
	"deepfakeapi/frames"
	"deepfakeapi/mediahost"
	"deepfakeapi/predict"
	"deepfakeapi/utils"
)

// FrameResult is the verdict for one sampled frame.
type FrameResult struct {
	Frame       int     `json:"frame"`
	FrameNumber int     `json:"frame_number"`
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
}

// maxFrames reads max_frames from the form or query. Missing means the
// configured default; larger values are capped.
func (h *Handler) maxFrames(r *http.Request) (int, error) {
	n := h.cfg.Video.DefaultMaxFrames
	if raw := filemgr.FormValue(r, "max_frames"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return 0, utils.NewHTTPError(http.StatusBadRequest, "max_frames must be a positive integer")
		}
		n = v
	}
	return min(n, h.cfg.Video.MaxFramesCap), nil
}

// AnalyzeVideo handles POST /api/analyze-video with a multipart "video"
// (or "file") and an optional max_frames.
func (h *Handler) AnalyzeVideo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	max := h.cfg.Storage.MaxFileSize
	if err := filemgr.ParseUploadForm(w, r, filemgr.BodyLimit(max, 1), max); err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	fh, err := filemgr.FormFile(r, "No video file uploaded", "video", "file")
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	if _, err := filemgr.ValidateFilename(fh.Filename); err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	if !filemgr.IsVideo(fh.Filename) {
		utils.RespondWithError(w, http.StatusBadRequest,
			"File must be a video. Allowed types: "+filemgr.VideoList())
		return
	}
	maxFrames, err := h.maxFrames(r)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	_, path, err := filemgr.Receive(fh, h.cfg.Storage.TempDir, max)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	defer filemgr.RemoveQuietly(path)

	info, err := h.sampler.Probe(path)
	if err != nil {
		h.logger.Warn("unreadable video", zap.String("filename", fh.Filename), zap.Error(err))
		utils.RespondWithError(w, http.StatusBadRequest, "Could not read video file")
		return
	}

	outDir := filepath.Join(h.cfg.Storage.FramesDir, uuid.NewString())
	defer func() {
		frames.Cleanup(outDir, h.logger)
		os.Remove(outDir)
	}()

	ctx := r.Context()
	samples := h.sampler.Extract(ctx, path, outDir, maxFrames)
	h.metrics.RecordFrames(len(samples))
	if len(samples) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Could not extract frames from video")
		return
	}

	results := make([]predict.Result, 0, len(samples))
	frameResults := make([]FrameResult, 0, len(samples))
	for _, s := range samples {
		res, err := h.predictor.Predict(ctx, s.Path)
		if err != nil {
			utils.RespondWithErr(w, err)
			return
		}
		results = append(results, res)
		frameResults = append(frameResults, FrameResult{
			Frame:       s.Index,
			FrameNumber: s.FrameNumber,
			Prediction:  res.Label,
			Confidence:  res.Confidence,
		})
	}
	overall := predict.Overall(results)
	h.metrics.RecordPrediction(string(filemgr.TypeVideo), overall.Label)

	videoURL := mediahost.UploadOrEmpty(ctx, h.media, h.logger, path, h.cfg.Media.VideoFolder)

	h.logger.Info("video analyzed",
		zap.String("filename", fh.Filename),
		zap.Int("frames_analyzed", len(samples)),
		zap.String("overall_prediction", overall.Label),
	)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":            true,
		"video_info":         info,
		"frames_analyzed":    len(samples),
		"frame_results":      frameResults,
		"overall_prediction": overall.Label,
		"overall_confidence": overall.Confidence,
		"video_url":          nullable(videoURL),
	})
}
