// Package urlfetch downloads remote images for analysis.
package urlfetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"deepfakeapi/utils"
)

// Failures carry the message shown to the client and a 400 status.
var (
	ErrNoURL        = &utils.HTTPError{Status: http.StatusBadRequest, Message: "No URL provided"}
	ErrInvalidURL   = &utils.HTTPError{Status: http.StatusBadRequest, Message: "URL must start with http:// or https://"}
	ErrNotAnImage   = &utils.HTTPError{Status: http.StatusBadRequest, Message: "URL does not point to an image"}
	ErrFetchTimeout = &utils.HTTPError{Status: http.StatusBadRequest, Message: "Request timeout - URL took too long to respond"}
)

func failed(err error) error {
	return &utils.HTTPError{Status: http.StatusBadRequest, Message: "Error: " + err.Error(), Err: err}
}

// maxImageBytes is the default cap on a downloaded image.
const maxImageBytes = 50 * 1024 * 1024

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

// ValidateURL only checks the scheme prefix.
func ValidateURL(raw string) error {
	if raw == "" {
		return ErrNoURL
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ErrInvalidURL
	}
	return nil
}

// HasImageExtension reports whether the URL ends in a known image extension.
// It is informational; the content type decides.
func HasImageExtension(raw string) bool {
	lower := strings.ToLower(raw)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// SavePath is where every download is written. Downloads share it.
	SavePath string
	// MaxBytes rejects larger bodies. Zero means maxImageBytes.
	MaxBytes int64
}

type Fetcher struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// NewFetcher returns a Fetcher. client may be nil.
func NewFetcher(client *http.Client, opts Options, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger.With(zap.String("component", "url_fetcher")),
	}
}

// Download fetches raw, decodes it as an image, converts it to NRGBA and
// writes it as JPEG to the configured save path, which it returns.
func (f *Fetcher) Download(ctx context.Context, raw string) (string, error) {
	f.logger.Info("downloading image from url",
		zap.String("url", raw),
		zap.Bool("image_extension", HasImageExtension(raw)),
	)

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", failed(err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", utils.NewHTTPError(http.StatusBadRequest, "Failed to download: Status %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "image") {
		return "", ErrNotAnImage
	}

	limit := f.opts.MaxBytes
	if limit <= 0 {
		limit = maxImageBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", classify(err)
	}
	if int64(len(body)) > limit {
		return "", utils.NewHTTPError(http.StatusBadRequest, "Image too large. Maximum size: %gMB", utils.BytesToMB(limit))
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", failed(err)
	}
	// Single color model regardless of source (paletted, gray, CMYK, alpha).
	normalized := imaging.Clone(img)

	if err := os.MkdirAll(filepath.Dir(f.opts.SavePath), 0o755); err != nil {
		return "", failed(err)
	}
	if err := imaging.Save(normalized, f.opts.SavePath, imaging.JPEGQuality(95)); err != nil {
		return "", failed(err)
	}

	f.logger.Info("image downloaded", zap.String("path", f.opts.SavePath))
	return f.opts.SavePath, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrFetchTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrFetchTimeout
	}
	return &utils.HTTPError{Status: http.StatusBadRequest, Message: "Network error: " + err.Error(), Err: err}
}
