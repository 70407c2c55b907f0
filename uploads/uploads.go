// Package uploads manages files stored in the upload directory.
package uploads

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"deepfakeapi/config"
	"deepfakeapi/filecheck"
	"deepfakeapi/filemgr"
	"deepfakeapi/mediahost"
	"deepfakeapi/rdx"
	"deepfakeapi/utils"
)

// maxBatchFiles sizes the request body cap of a batch upload.
const maxBatchFiles = 10

type Handler struct {
	cfg      *config.Config
	cache    *rdx.Cache
	registry *filecheck.Registry
	media    mediahost.Uploader
	logger   *zap.Logger
}

// NewHandler wires the upload routes. cache, registry and media may be nil.
func NewHandler(cfg *config.Config, cache *rdx.Cache, registry *filecheck.Registry, media mediahost.Uploader, logger *zap.Logger) *Handler {
	if media == nil {
		media = mediahost.Noop{}
	}
	return &Handler{
		cfg:      cfg,
		cache:    cache,
		registry: registry,
		media:    media,
		logger:   logger.With(zap.String("component", "uploads")),
	}
}

// FileInfo describes a stored upload.
type FileInfo struct {
	Filename  string           `json:"filename"`
	FilePath  string           `json:"file_path"`
	FileType  filemgr.FileType `json:"file_type"`
	SizeMB    float64          `json:"file_size_mb"`
	CreatedAt float64          `json:"created_at"`
}

func infoCacheKey(filename string) string {
	return "upload:info:" + filename
}

var errNotFound = &utils.HTTPError{Status: http.StatusNotFound, Message: "File not found"}

// stored resolves a client supplied name inside the upload directory and
// checks that it is a regular file.
func (h *Handler) stored(name string) (string, os.FileInfo, error) {
	path, err := filemgr.ResolveStored(h.cfg.Storage.UploadDir, name)
	if err != nil {
		return "", nil, err
	}
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !st.Mode().IsRegular()) {
		return "", nil, errNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return path, st, nil
}

// record hashes a stored file into the registry. Failures only get logged.
func (h *Handler) record(ctx context.Context, uf filemgr.UploadedFile, path, url string) {
	if h.registry == nil {
		return
	}
	hash, err := filecheck.HashFile(path)
	if err != nil {
		h.logger.Warn("hash upload", zap.String("path", path), zap.Error(err))
		return
	}
	err = h.registry.Record(ctx, filecheck.FileMetadata{
		Hash:             hash,
		Filename:         baseName(path),
		OriginalFilename: uf.Filename,
		FileType:         string(uf.Type),
		Size:             uf.Size,
		URL:              url,
	})
	if err != nil {
		h.logger.Warn("record upload", zap.String("path", path), zap.Error(err))
	}
}

// removeHosted deletes the hosted copy recorded for a stored file, if any.
// Failures only get logged.
func (h *Handler) removeHosted(ctx context.Context, name string) {
	meta, err := h.registry.FindByFilename(ctx, name)
	if err != nil {
		h.logger.Warn("look up registry record", zap.String("filename", name), zap.Error(err))
		return
	}
	if meta == nil || meta.URL == "" {
		return
	}
	id := mediahost.PublicID(meta.URL)
	if id == "" {
		return
	}
	ok, err := h.media.Delete(ctx, id)
	if err != nil {
		h.logger.Warn("delete hosted copy", zap.String("public_id", id), zap.Error(err))
		return
	}
	h.logger.Info("hosted copy deleted", zap.String("public_id", id), zap.Bool("confirmed", ok))
}

func (h *Handler) folderFor(t filemgr.FileType) string {
	if t == filemgr.TypeVideo {
		return h.cfg.Media.VideoFolder
	}
	return h.cfg.Media.ImageFolder
}

// Upload handles POST /api/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
	h.logger.Info("received upload", zap.String("filename", fh.Filename))

	uf, path, err := filemgr.Receive(fh, h.cfg.Storage.UploadDir, max)
	if err != nil {
		h.logger.Info("upload rejected", zap.String("filename", fh.Filename), zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}

	ctx := r.Context()
	fileURL := mediahost.UploadOrEmpty(ctx, h.media, h.logger, path, h.folderFor(uf.Type))
	h.record(ctx, uf, path, fileURL)

	h.logger.Info("file uploaded", zap.String("path", path), zap.Int64("size", uf.Size))
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success": true,
		"message": "File uploaded successfully",
		"data": utils.M{
			"original_filename": uf.Filename,
			"saved_filename":    baseName(path),
			"file_path":         path,
			"file_type":         uf.Type,
			"file_size_mb":      utils.BytesToMB(uf.Size),
			"file_url":          nullable(fileURL),
		},
	})
}

// UploadTemp handles POST /api/upload/temp. The file stays in the temp
// directory for later processing.
func (h *Handler) UploadTemp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
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
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success": true,
		"message": "File uploaded to temporary storage",
		"data": utils.M{
			"file_path": path,
			"file_type": uf.Type,
		},
	})
}

// BatchResult is the outcome for one file of a batch.
type BatchResult struct {
	Success          bool             `json:"success"`
	OriginalFilename string           `json:"original_filename"`
	SavedFilename    string           `json:"saved_filename,omitempty"`
	FileType         filemgr.FileType `json:"file_type,omitempty"`
	SizeMB           float64          `json:"file_size_mb,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// UploadBatch handles POST /api/upload/batch. A failing file does not stop
// the others.
func (h *Handler) UploadBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	max := h.cfg.Storage.MaxFileSize
	if err := filemgr.ParseUploadForm(w, r, filemgr.BodyLimit(max, maxBatchFiles), max); err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	fhs := filemgr.FormFiles(r, "files")
	if len(fhs) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	ctx := r.Context()
	results := make([]BatchResult, 0, len(fhs))
	successful := 0
	for _, fh := range fhs {
		uf, path, err := filemgr.Receive(fh, h.cfg.Storage.UploadDir, max)
		if err != nil {
			h.logger.Info("batch file rejected", zap.String("filename", fh.Filename), zap.Error(err))
			results = append(results, BatchResult{OriginalFilename: fh.Filename, Error: err.Error()})
			continue
		}
		h.record(ctx, uf, path, "")
		results = append(results, BatchResult{
			Success:          true,
			OriginalFilename: fh.Filename,
			SavedFilename:    baseName(path),
			FileType:         uf.Type,
			SizeMB:           utils.BytesToMB(uf.Size),
		})
		successful++
	}

	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success": true,
		"message": fmtProcessed(len(fhs)),
		"summary": utils.M{
			"total":      len(fhs),
			"successful": successful,
			"failed":     len(fhs) - successful,
		},
		"results": results,
	})
}

// GetFileInfo handles GET /api/upload/:filename.
func (h *Handler) GetFileInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("filename")
	ctx := r.Context()

	var info FileInfo
	if h.cache.GetJSON(ctx, infoCacheKey(name), &info) {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "data": info})
		return
	}

	path, st, err := h.stored(name)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	info = FileInfo{
		Filename:  name,
		FilePath:  path,
		FileType:  filemgr.FileTypeOf(name),
		SizeMB:    utils.BytesToMB(st.Size()),
		CreatedAt: float64(st.ModTime().UnixNano()) / 1e9,
	}
	h.cache.SetJSON(ctx, infoCacheKey(name), info)

	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "data": info})
}

// DeleteFile handles DELETE /api/upload/:filename.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := ps.ByName("filename")
	path, _, err := h.stored(name)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	if err := os.Remove(path); err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	ctx := r.Context()
	h.cache.Del(ctx, infoCacheKey(name))
	h.removeHosted(ctx, name)
	if _, err := h.registry.Remove(ctx, name); err != nil {
		h.logger.Warn("remove registry record", zap.String("filename", name), zap.Error(err))
	}

	h.logger.Info("file deleted", zap.String("path", path))
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success": true,
		"message": "File " + name + " deleted successfully",
	})
}

// ListEntry is one row of the upload listing.
type ListEntry struct {
	Filename string  `json:"filename"`
	SizeMB   float64 `json:"file_size_mb"`
}

// List handles GET /api/upload.
func (h *Handler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	files := []ListEntry{}
	entries, err := os.ReadDir(h.cfg.Storage.UploadDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		utils.RespondWithErr(w, err)
		return
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		st, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, ListEntry{Filename: e.Name(), SizeMB: utils.BytesToMB(st.Size())})
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"success":     true,
		"total_files": len(files),
		"files":       files,
	})
}
