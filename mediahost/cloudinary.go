package mediahost

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Cloudinary uploads through the Cloudinary SDK.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

// Upload sends the file with resource type auto so images and videos share
// one call.
func (c *Cloudinary) Upload(ctx context.Context, path, folder string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	resp, err := c.cld.Upload.Upload(ctx, f, uploader.UploadParams{
		Folder:       folder,
		ResourceType: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", errors.New(resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// Delete destroys publicID. Uploads use resource type auto, so an asset
// that is not found as an image is retried as a video.
func (c *Cloudinary) Delete(ctx context.Context, publicID string) (bool, error) {
	for _, rt := range []string{"image", "video"} {
		resp, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID, ResourceType: rt})
		if err != nil {
			return false, fmt.Errorf("cloudinary destroy: %w", err)
		}
		if resp.Error.Message != "" {
			return false, errors.New(resp.Error.Message)
		}
		if resp.Result != "not found" {
			return resp.Result == "ok", nil
		}
	}
	return false, nil
}

func (c *Cloudinary) Info(ctx context.Context, publicID string) (*AssetInfo, error) {
	resp, err := c.cld.Admin.Asset(ctx, admin.AssetParams{PublicID: publicID})
	if err != nil {
		return nil, fmt.Errorf("cloudinary asset: %w", err)
	}
	if resp.Error.Message != "" {
		return nil, errors.New(resp.Error.Message)
	}
	return &AssetInfo{
		PublicID:     resp.PublicID,
		Format:       resp.Format,
		ResourceType: resp.ResourceType,
		Bytes:        resp.Bytes,
		Width:        resp.Width,
		Height:       resp.Height,
		SecureURL:    resp.SecureURL,
		CreatedAt:    resp.CreatedAt,
	}, nil
}

// PublicID extracts the asset id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1700000000/folder/name.jpg,
// which yields folder/name. It returns "" for URLs it does not recognise.
func PublicID(secureURL string) string {
	u, err := url.Parse(secureURL)
	if err != nil {
		return ""
	}
	_, rest, ok := strings.Cut(u.Path, "/upload/")
	if !ok {
		return ""
	}
	if seg, after, ok := strings.Cut(rest, "/"); ok && isVersion(seg) {
		rest = after
	}
	return strings.TrimSuffix(rest, path.Ext(rest))
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, c := range seg[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
