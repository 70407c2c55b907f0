package mediahost

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deepfakeapi/config"
)

type stubUploader struct {
	Noop
	url string
	err error
}

func (s stubUploader) Upload(context.Context, string, string) (string, error) {
	return s.url, s.err
}

func TestNoop(t *testing.T) {
	var up Uploader = Noop{}
	url, err := up.Upload(context.Background(), "a.jpg", "f")
	require.NoError(t, err)
	assert.Empty(t, url)

	ok, err := up.Delete(context.Background(), "id")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = up.Info(context.Background(), "id")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploadOrEmpty(t *testing.T) {
	log := zap.NewNop()
	ctx := context.Background()

	assert.Equal(t, "https://cdn/x.jpg", UploadOrEmpty(ctx, stubUploader{url: "https://cdn/x.jpg"}, log, "x.jpg", "f"))
	assert.Empty(t, UploadOrEmpty(ctx, stubUploader{err: errors.New("boom")}, log, "x.jpg", "f"))
	assert.Empty(t, UploadOrEmpty(ctx, nil, log, "x.jpg", "f"))
}

func TestCounted(t *testing.T) {
	var got []string
	record := func(r string) { got = append(got, r) }
	ctx := context.Background()

	Counted(stubUploader{url: "u"}, record).Upload(ctx, "p", "f")
	Counted(stubUploader{err: errors.New("x")}, record).Upload(ctx, "p", "f")
	Counted(Noop{}, record).Upload(ctx, "p", "f")

	assert.Equal(t, []string{"success", "failure", "skipped"}, got)
}

func TestNewWithoutCredentials(t *testing.T) {
	up, err := New(config.MediaConfig{CloudName: "demo"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, up)
}

func TestCloudinaryUploadMissingFile(t *testing.T) {
	c, err := NewCloudinary("demo", "key", "secret")
	require.NoError(t, err)

	url, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), "f")
	assert.Error(t, err)
	assert.Empty(t, url)
}

func TestPublicID(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/image/upload/v1700000000/deepfake-uploads/abc.jpg": "deepfake-uploads/abc",
		"https://res.cloudinary.com/demo/video/upload/deepfake-videos/clip.mp4":            "deepfake-videos/clip",
		"https://res.cloudinary.com/demo/image/upload/v12/plain":                           "plain",
		"https://example.com/a.jpg":                                                        "",
		"":                                                                                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, PublicID(in), in)
	}
}
