// Package mediahost forwards local files to a hosted media service.
package mediahost

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"deepfakeapi/config"
)

// ErrNotConfigured is returned by Noop for operations that need a host.
var ErrNotConfigured = errors.New("media host not configured")

// AssetInfo describes a hosted asset.
type AssetInfo struct {
	PublicID     string    `json:"public_id"`
	Format       string    `json:"format"`
	ResourceType string    `json:"resource_type"`
	Bytes        int       `json:"bytes"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	SecureURL    string    `json:"secure_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Uploader is a hosted media service.
type Uploader interface {
	// Upload sends the file at path into folder and returns its public URL.
	Upload(ctx context.Context, path, folder string) (string, error)
	// Delete removes an asset. The bool reports whether the host confirmed it.
	Delete(ctx context.Context, publicID string) (bool, error)
	Info(ctx context.Context, publicID string) (*AssetInfo, error)
}

// Noop is used when no credentials are configured. Uploads succeed with an
// empty URL.
type Noop struct{}

func (Noop) Upload(context.Context, string, string) (string, error) { return "", nil }

func (Noop) Delete(context.Context, string) (bool, error) { return false, ErrNotConfigured }

func (Noop) Info(context.Context, string) (*AssetInfo, error) { return nil, ErrNotConfigured }

// UploadOrEmpty uploads path and returns its URL, or "" when the upload
// fails. Failures are logged and never retried.
func UploadOrEmpty(ctx context.Context, up Uploader, logger *zap.Logger, path, folder string) string {
	if up == nil {
		return ""
	}
	url, err := up.Upload(ctx, path, folder)
	if err != nil {
		logger.Warn("media upload failed",
			zap.String("path", path),
			zap.String("folder", folder),
			zap.Error(err),
		)
		return ""
	}
	if url != "" {
		logger.Info("file uploaded to media host", zap.String("url", url))
	}
	return url
}

// Counted wraps an Uploader and reports each upload outcome to record.
// record receives "success", "failure" or "skipped".
func Counted(up Uploader, record func(result string)) Uploader {
	return &counted{Uploader: up, record: record}
}

type counted struct {
	Uploader
	record func(string)
}

func (c *counted) Upload(ctx context.Context, path, folder string) (string, error) {
	url, err := c.Uploader.Upload(ctx, path, folder)
	switch {
	case err != nil:
		c.record("failure")
	case url == "":
		c.record("skipped")
	default:
		c.record("success")
	}
	return url, err
}

// New returns a Cloudinary uploader when credentials are configured and Noop
// otherwise.
func New(cfg config.MediaConfig, logger *zap.Logger) (Uploader, error) {
	if !cfg.Enabled() {
		logger.Info("media host disabled, uploads return no url")
		return Noop{}, nil
	}
	return NewCloudinary(cfg.CloudName, cfg.APIKey, cfg.APISecret)
}
