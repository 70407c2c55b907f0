// Package frames samples still images out of a video file.
package frames

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// VideoInfo is the metadata reported by the container.
type VideoInfo struct {
	TotalFrames     int `json:"total_frames"`
	FPS             int `json:"fps"`
	Width           int `json:"width"`
	Height          int `json:"height"`
	DurationSeconds int `json:"duration_seconds"`
}

// Source is an open video that yields decoded frames in order.
type Source interface {
	Info() VideoInfo
	// Grab decodes the next frame. It returns false at end of stream or on a
	// read error.
	Grab() bool
	// WriteFrame encodes the last grabbed frame as an image file.
	WriteFrame(path string) error
	Close() error
}

// Opener opens a video for frame grabbing.
type Opener func(path string) (Source, error)

// FrameSample is one extracted frame.
type FrameSample struct {
	Index       int    `json:"index"`
	FrameNumber int    `json:"frame_number"`
	SourcePath  string `json:"-"`
	Path        string `json:"path"`
}

// Stride is the distance between kept frames: 1 when the video has no more
// than max frames, otherwise total/max rounded down.
func Stride(total, max int) int {
	if max <= 0 || total <= max {
		return 1
	}
	return total / max
}

type Sampler struct {
	open   Opener
	logger *zap.Logger
}

func NewSampler(open Opener, logger *zap.Logger) *Sampler {
	return &Sampler{
		open:   open,
		logger: logger.With(zap.String("component", "frame_sampler")),
	}
}

// Probe reads the container metadata of videoPath.
func (s *Sampler) Probe(videoPath string) (VideoInfo, error) {
	src, err := s.open(videoPath)
	if err != nil {
		return VideoInfo{}, err
	}
	defer src.Close()
	return src.Info(), nil
}

// Extract walks the video once and writes every stride-th frame to outDir as
// frame_NNNN.jpg until maxFrames are kept. A video that cannot be opened
// yields an empty result. Cancelling ctx stops the walk and returns the
// frames written so far.
func (s *Sampler) Extract(ctx context.Context, videoPath, outDir string, maxFrames int) []FrameSample {
	if maxFrames <= 0 {
		return nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		s.logger.Error("create frames directory", zap.String("dir", outDir), zap.Error(err))
		return nil
	}

	src, err := s.open(videoPath)
	if err != nil {
		s.logger.Warn("could not open video", zap.String("video", videoPath), zap.Error(err))
		return nil
	}
	defer src.Close()

	info := src.Info()
	stride := Stride(info.TotalFrames, maxFrames)
	want := min(maxFrames, info.TotalFrames)
	if info.TotalFrames <= 0 {
		want = maxFrames
	}
	s.logger.Info("extracting frames",
		zap.String("video", videoPath),
		zap.Int("total_frames", info.TotalFrames),
		zap.Int("fps", info.FPS),
		zap.Int("stride", stride),
		zap.Int("frames_to_extract", want),
	)

	var out []FrameSample
	for frameNum := 0; len(out) < maxFrames; frameNum++ {
		if ctx.Err() != nil {
			s.logger.Warn("frame extraction cancelled", zap.String("video", videoPath), zap.Int("extracted", len(out)))
			break
		}
		if !src.Grab() {
			break
		}
		if frameNum%stride != 0 {
			continue
		}

		path := filepath.Join(outDir, fmt.Sprintf("frame_%04d.jpg", len(out)))
		if err := src.WriteFrame(path); err != nil {
			s.logger.Warn("write frame", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, FrameSample{
			Index:       len(out),
			FrameNumber: frameNum,
			SourcePath:  videoPath,
			Path:        path,
		})
	}

	s.logger.Info("extracted frames", zap.String("video", videoPath), zap.Int("count", len(out)))
	return out
}

// Cleanup deletes every regular file in dir and returns how many were
// removed. Individual failures are logged and skipped.
func Cleanup(dir string, logger *zap.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("delete frame", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
