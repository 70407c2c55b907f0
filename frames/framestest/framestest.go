// Package framestest provides a frames.Opener that reads a small text
// stand-in for a video, so handlers can be tested without OpenCV.
package framestest

import (
	"errors"
	"fmt"
	"os"

	"deepfakeapi/frames"
)

const header = "FAKEVIDEO"

var ErrNotVideo = errors.New("framestest: not a fake video")

// Video returns the bytes of a fake video with n frames at 30 fps.
func Video(n int) []byte {
	return []byte(fmt.Sprintf("%s %d\n", header, n))
}

// Open is a frames.Opener for files written with Video.
func Open(path string) (frames.Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var n int
	if _, err := fmt.Sscanf(string(b), header+" %d", &n); err != nil {
		return nil, ErrNotVideo
	}
	return &source{total: n}, nil
}

type source struct {
	total int
	pos   int
}

func (s *source) Info() frames.VideoInfo {
	return frames.VideoInfo{TotalFrames: s.total, FPS: 30, Width: 64, Height: 48, DurationSeconds: s.total / 30}
}

func (s *source) Grab() bool {
	if s.pos >= s.total {
		return false
	}
	s.pos++
	return true
}

func (s *source) WriteFrame(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprint(s.pos-1)), 0o644)
}

func (s *source) Close() error { return nil }
