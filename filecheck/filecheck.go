// Package filecheck keeps a content-hash registry of stored uploads.
package filecheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"deepfakeapi/utils"
)

type FileMetadata struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Hash             string             `bson:"hash" json:"hash"`
	Filename         string             `bson:"filename" json:"filename"`
	OriginalFilename string             `bson:"original_filename" json:"original_filename"`
	FileType         string             `bson:"file_type" json:"file_type"`
	Size             int64              `bson:"size" json:"size"`
	URL              string             `bson:"url,omitempty" json:"url,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
}

// Registry records stored uploads by hash. A nil *Registry records nothing
// and finds nothing.
type Registry struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewRegistry(coll *mongo.Collection, logger *zap.Logger) *Registry {
	return &Registry{coll: coll, logger: logger.With(zap.String("component", "file_registry"))}
}

func (reg *Registry) Record(ctx context.Context, meta FileMetadata) error {
	if reg == nil {
		return nil
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	_, err := reg.coll.InsertOne(ctx, meta)
	return err
}

// FindByHash returns the first file with the given hash, or nil.
func (reg *Registry) FindByHash(ctx context.Context, hash string) (*FileMetadata, error) {
	return reg.findOne(ctx, bson.M{"hash": hash})
}

// FindByFilename returns the record of a stored file name, or nil.
func (reg *Registry) FindByFilename(ctx context.Context, filename string) (*FileMetadata, error) {
	return reg.findOne(ctx, bson.M{"filename": filename})
}

func (reg *Registry) findOne(ctx context.Context, filter bson.M) (*FileMetadata, error) {
	if reg == nil {
		return nil, nil
	}
	var file FileMetadata
	err := reg.coll.FindOne(ctx, filter).Decode(&file)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Remove deletes every record for filename.
func (reg *Registry) Remove(ctx context.Context, filename string) (int64, error) {
	if reg == nil {
		return 0, nil
	}
	res, err := reg.coll.DeleteMany(ctx, bson.M{"filename": filename})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

const checkBodyLimit = 64 << 10

// CheckFileExists answers whether a file with the posted hash is stored.
func (reg *Registry) CheckFileExists(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	r.Body = http.MaxBytesReader(w, r.Body, checkBodyLimit)
	var req struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hash == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	file, err := reg.FindByHash(r.Context(), req.Hash)
	if err != nil {
		reg.logger.Error("hash lookup failed", zap.String("hash", req.Hash), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if file == nil {
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"exists": false})
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{
		"exists":   true,
		"filename": file.Filename,
		"url":      file.URL,
	})
}

// ComputeFileHash returns the hex SHA-256 of everything read from r.
func ComputeFileHash(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ComputeFileHash(f)
}
