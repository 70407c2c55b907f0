package filecheck

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestComputeFileHash(t *testing.T) {
	h, err := ComputeFileHash(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, emptySHA256, h)

	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	h, err = HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
}

func checkRequest(reg *Registry, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/upload/check", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	reg.CheckFileExists(rr, req, nil)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return m
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry
	ctx := context.Background()
	require.NoError(t, reg.Record(ctx, FileMetadata{Hash: "x"}))
	f, err := reg.FindByHash(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, f)
	f, err = reg.FindByFilename(ctx, "x")
	require.NoError(t, err)
	assert.Nil(t, f)
	n, err := reg.Remove(ctx, "x")
	require.NoError(t, err)
	assert.Zero(t, n)

	rr := checkRequest(reg, `{"hash":"abc"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["exists"])
}

func TestCheckFileExistsBadRequest(t *testing.T) {
	var reg *Registry
	assert.Equal(t, http.StatusBadRequest, checkRequest(reg, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, checkRequest(reg, `{}`).Code)
}

func TestCheckFileExistsBodyLimit(t *testing.T) {
	var reg *Registry
	oversized := `{"hash":"` + strings.Repeat("a", checkBodyLimit) + `"}`
	rr := checkRequest(reg, oversized)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request", decode(t, rr)["error"])
}

func TestRegistry(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("record", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		assert.NoError(mt, reg.Record(context.Background(), FileMetadata{Hash: "h", Filename: "1_a.jpg"}))
	})

	mt.Run("found", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "hash", Value: "h"},
			{Key: "filename", Value: "1_a.jpg"},
			{Key: "url", Value: "https://cdn/a.jpg"},
		}))

		rr := checkRequest(reg, `{"hash":"h"}`)
		require.Equal(mt, http.StatusOK, rr.Code)
		body := decode(mt.T, rr)
		assert.Equal(mt, true, body["exists"])
		assert.Equal(mt, "1_a.jpg", body["filename"])
		assert.Equal(mt, "https://cdn/a.jpg", body["url"])
	})

	mt.Run("missing", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		f, err := reg.FindByHash(context.Background(), "h")
		require.NoError(mt, err)
		assert.Nil(mt, f)
	})

	mt.Run("by filename", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "hash", Value: "h"},
			{Key: "filename", Value: "1_a.jpg"},
			{Key: "original_filename", Value: "a.jpg"},
			{Key: "size", Value: int64(42)},
		}))

		f, err := reg.FindByFilename(context.Background(), "1_a.jpg")
		require.NoError(mt, err)
		require.NotNil(mt, f)
		assert.Equal(mt, "a.jpg", f.OriginalFilename)
		assert.EqualValues(mt, 42, f.Size)
	})

	mt.Run("database error", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "boom"}))

		rr := checkRequest(reg, `{"hash":"h"}`)
		assert.Equal(mt, http.StatusInternalServerError, rr.Code)
		assert.Equal(mt, "Database error", decode(mt.T, rr)["error"])
	})

	mt.Run("remove", func(mt *mtest.T) {
		reg := NewRegistry(mt.Coll, zap.NewNop())
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 2}})

		n, err := reg.Remove(context.Background(), "1_a.jpg")
		require.NoError(mt, err)
		assert.EqualValues(mt, 2, n)
	})
}
