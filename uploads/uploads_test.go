package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"

	"deepfakeapi/config"
	"deepfakeapi/filecheck"
	"deepfakeapi/mediahost"
	"deepfakeapi/rdx"
)

type upload struct {
	name string
	body []byte
}

func newTestRouter(t *testing.T, cache *rdx.Cache) (*httprouter.Router, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.TempDir = filepath.Join(dir, "temp")

	h := NewHandler(cfg, cache, nil, nil, zap.NewNop())
	router := httprouter.New()
	router.GET("/api/upload", h.List)
	router.POST("/api/upload", h.Upload)
	router.POST("/api/upload/temp", h.UploadTemp)
	router.POST("/api/upload/batch", h.UploadBatch)
	router.GET("/api/upload/:filename", h.GetFileInfo)
	router.DELETE("/api/upload/:filename", h.DeleteFile)
	return router, cfg
}

func form(t *testing.T, field string, files ...upload) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, router http.Handler, method, path string, body io.Reader, contentType string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return rr.Code, m
}

func TestUploadInfoDelete(t *testing.T) {
	router, cfg := newTestRouter(t, nil)

	body, ct := form(t, "file", upload{"my face.jpg", bytes.Repeat([]byte("a"), 1024*1024)})
	code, got := do(t, router, http.MethodPost, "/api/upload", body, ct)
	require.Equal(t, http.StatusOK, code, got)
	data := got["data"].(map[string]any)
	assert.Equal(t, "my face.jpg", data["original_filename"])
	assert.Equal(t, "image", data["file_type"])
	assert.Equal(t, 1.0, data["file_size_mb"])
	assert.Nil(t, data["file_url"])

	saved := data["saved_filename"].(string)
	assert.Regexp(t, `^\d+_my_face\.jpg$`, saved)
	assert.FileExists(t, filepath.Join(cfg.Storage.UploadDir, saved))

	code, got = do(t, router, http.MethodGet, "/api/upload", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, got["total_files"])

	code, got = do(t, router, http.MethodGet, "/api/upload/"+saved, nil, "")
	require.Equal(t, http.StatusOK, code)
	info := got["data"].(map[string]any)
	assert.Equal(t, saved, info["filename"])
	assert.Equal(t, "image", info["file_type"])
	assert.Equal(t, 1.0, info["file_size_mb"])

	code, got = do(t, router, http.MethodDelete, "/api/upload/"+saved, nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "File "+saved+" deleted successfully", got["message"])
	assert.NoFileExists(t, filepath.Join(cfg.Storage.UploadDir, saved))

	code, got = do(t, router, http.MethodGet, "/api/upload/"+saved, nil, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "File not found", got["error"])

	code, _ = do(t, router, http.MethodDelete, "/api/upload/"+saved, nil, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUploadRejects(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	body, ct := form(t, "file", upload{"script.sh", []byte("echo")})
	code, got := do(t, router, http.MethodPost, "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, got["error"], "File type not allowed")

	code, got = do(t, router, http.MethodPost, "/api/upload", bytes.NewBufferString("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", got["error"])
}

func TestUploadTemp(t *testing.T) {
	router, cfg := newTestRouter(t, nil)

	body, ct := form(t, "file", upload{"clip.mp4", []byte("video")})
	code, got := do(t, router, http.MethodPost, "/api/upload/temp", body, ct)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "File uploaded to temporary storage", got["message"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "video", data["file_type"])
	path := data["file_path"].(string)
	assert.Equal(t, cfg.Storage.TempDir, filepath.Dir(path))
	assert.FileExists(t, path)
}

func TestUploadBatchContinuesAfterFailure(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	body, ct := form(t, "files",
		upload{"a.png", []byte("png")},
		upload{"b.exe", []byte("exe")},
		upload{"c.mov", []byte("mov")},
	)
	code, got := do(t, router, http.MethodPost, "/api/upload/batch", body, ct)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Processed 3 files", got["message"])
	assert.Equal(t, map[string]any{"total": 3.0, "successful": 2.0, "failed": 1.0}, got["summary"])

	results := got["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, true, results[0].(map[string]any)["success"])
	failed := results[1].(map[string]any)
	assert.Equal(t, false, failed["success"])
	assert.Equal(t, "b.exe", failed["original_filename"])
	assert.Contains(t, failed["error"], "File type not allowed")
	assert.Equal(t, "video", results[2].(map[string]any)["file_type"])

	code, got = do(t, router, http.MethodGet, "/api/upload", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, got["total_files"])
}

func TestUploadBatchEmpty(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	body, ct := form(t, "other", upload{"a.png", []byte("png")})
	code, got := do(t, router, http.MethodPost, "/api/upload/batch", body, ct)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No files uploaded", got["error"])
}

func TestListMissingDir(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	code, got := do(t, router, http.MethodGet, "/api/upload", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, got["total_files"])
	assert.Equal(t, []any{}, got["files"])
}

func TestPathTraversalRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.UploadDir = t.TempDir()
	h := NewHandler(cfg, nil, nil, nil, zap.NewNop())

	for _, name := range []string{"../secret.jpg", "..", "a/b.jpg"} {
		rr := httptest.NewRecorder()
		h.DeleteFile(rr, httptest.NewRequest(http.MethodDelete, "/", nil), httprouter.Params{{Key: "filename", Value: name}})
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
}

func TestFileInfoCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := rdx.Connect(context.Background(), config.RedisConfig{Addr: mr.Addr(), CacheTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer cache.Close()

	router, cfg := newTestRouter(t, cache)
	require.NoError(t, os.MkdirAll(cfg.Storage.UploadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.UploadDir, "1_a.jpg"), []byte("x"), 0o644))

	code, _ := do(t, router, http.MethodGet, "/api/upload/1_a.jpg", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, mr.Exists("upload:info:1_a.jpg"))

	// Served from the cache even though the file is gone.
	require.NoError(t, os.Remove(filepath.Join(cfg.Storage.UploadDir, "1_a.jpg")))
	code, got := do(t, router, http.MethodGet, "/api/upload/1_a.jpg", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1_a.jpg", got["data"].(map[string]any)["filename"])

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.UploadDir, "1_a.jpg"), []byte("x"), 0o644))
	code, _ = do(t, router, http.MethodDelete, "/api/upload/1_a.jpg", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, mr.Exists("upload:info:1_a.jpg"))
}

type deleteRecorder struct {
	mediahost.Noop
	deleted []string
}

func (d *deleteRecorder) Delete(_ context.Context, publicID string) (bool, error) {
	d.deleted = append(d.deleted, publicID)
	return true, nil
}

func TestDeleteRemovesHostedCopy(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("hosted", func(mt *mtest.T) {
		cfg := config.Default()
		cfg.Storage.UploadDir = mt.TempDir()
		require.NoError(mt, os.WriteFile(filepath.Join(cfg.Storage.UploadDir, "1_a.jpg"), []byte("x"), 0o644))

		media := &deleteRecorder{}
		h := NewHandler(cfg, nil, filecheck.NewRegistry(mt.Coll, zap.NewNop()), media, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "filename", Value: "1_a.jpg"},
				{Key: "url", Value: "https://res.cloudinary.com/demo/image/upload/v1700000000/deepfake-uploads/1_a.jpg"},
			}),
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}},
		)

		rr := httptest.NewRecorder()
		h.DeleteFile(rr, httptest.NewRequest(http.MethodDelete, "/", nil), httprouter.Params{{Key: "filename", Value: "1_a.jpg"}})
		assert.Equal(mt, http.StatusOK, rr.Code)
		assert.Equal(mt, []string{"deepfake-uploads/1_a"}, media.deleted)
		assert.NoFileExists(mt, filepath.Join(cfg.Storage.UploadDir, "1_a.jpg"))
	})
}
