// Package detect serves the prediction endpoints for images, videos and
// remote image URLs.
package detect

import (
	"go.uber.org/zap"

	"deepfakeapi/config"
	"deepfakeapi/frames"
	"deepfakeapi/mediahost"
	"deepfakeapi/metrics"
	"deepfakeapi/predict"
	"deepfakeapi/urlfetch"
)

type Handler struct {
	cfg       *config.Config
	predictor predict.Predictor
	sampler   *frames.Sampler
	fetcher   *urlfetch.Fetcher
	media     mediahost.Uploader
	metrics   *metrics.Collector
	logger    *zap.Logger
}

type Deps struct {
	Config    *config.Config
	Predictor predict.Predictor
	Sampler   *frames.Sampler
	Fetcher   *urlfetch.Fetcher
	Media     mediahost.Uploader
	Metrics   *metrics.Collector
	Logger    *zap.Logger
}

func NewHandler(d Deps) *Handler {
	media := d.Media
	if media == nil {
		media = mediahost.Noop{}
	}
	return &Handler{
		cfg:       d.Config,
		predictor: d.Predictor,
		sampler:   d.Sampler,
		fetcher:   d.Fetcher,
		media:     media,
		metrics:   d.Metrics,
		logger:    d.Logger.With(zap.String("component", "detect")),
	}
}

// nullable renders an empty URL as JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
