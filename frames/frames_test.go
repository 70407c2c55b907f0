package frames

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSource plays back total frames and writes the frame number as the
// image body.
type fakeSource struct {
	total    int
	reported int
	pos      int
	closed   bool
}

func (f *fakeSource) Info() VideoInfo {
	return VideoInfo{TotalFrames: f.reported, FPS: 30, Width: 640, Height: 480, DurationSeconds: f.reported / 30}
}

func (f *fakeSource) Grab() bool {
	if f.pos >= f.total {
		return false
	}
	f.pos++
	return true
}

func (f *fakeSource) WriteFrame(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprint(f.pos-1)), 0o644)
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func openerFor(src *fakeSource) Opener {
	return func(string) (Source, error) { return src, nil }
}

func frameNumbers(samples []FrameSample) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = s.FrameNumber
	}
	return out
}

func TestStride(t *testing.T) {
	assert.Equal(t, 1, Stride(3, 20))
	assert.Equal(t, 1, Stride(20, 20))
	assert.Equal(t, 5, Stride(100, 20))
	assert.Equal(t, 1, Stride(39, 20))
	assert.Equal(t, 2, Stride(40, 20))
	assert.Equal(t, 1, Stride(0, 20))
}

func TestExtractKeepsEveryFrameWhenUnderCap(t *testing.T) {
	src := &fakeSource{total: 3, reported: 3}
	s := NewSampler(openerFor(src), zap.NewNop())

	out := s.Extract(context.Background(), "clip.mp4", t.TempDir(), 20)
	require.Len(t, out, 3)
	assert.Equal(t, []int{0, 1, 2}, frameNumbers(out))
	assert.True(t, src.closed)

	for i, f := range out {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, fmt.Sprintf("frame_%04d.jpg", i), filepath.Base(f.Path))
		assert.Equal(t, "clip.mp4", f.SourcePath)
		_, err := os.Stat(f.Path)
		assert.NoError(t, err)
	}
}

func TestExtractEvenlySpacedWhenOverCap(t *testing.T) {
	for _, total := range []int{21, 100, 105, 1000} {
		src := &fakeSource{total: total, reported: total}
		s := NewSampler(openerFor(src), zap.NewNop())

		out := s.Extract(context.Background(), "clip.mp4", t.TempDir(), 20)
		require.Len(t, out, 20, "total=%d", total)

		stride := Stride(total, 20)
		for i, f := range out {
			assert.Equal(t, i*stride, f.FrameNumber, "total=%d", total)
		}

		data, err := os.ReadFile(out[1].Path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(stride), string(data))
	}
}

func TestExtractUnknownFrameCount(t *testing.T) {
	src := &fakeSource{total: 50, reported: 0}
	s := NewSampler(openerFor(src), zap.NewNop())

	out := s.Extract(context.Background(), "stream.mkv", t.TempDir(), 10)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, frameNumbers(out))
}

func TestExtractUnreadableVideo(t *testing.T) {
	s := NewSampler(func(string) (Source, error) { return nil, errors.New("bad header") }, zap.NewNop())
	out := s.Extract(context.Background(), "broken.mp4", t.TempDir(), 20)
	assert.Empty(t, out)
}

func TestExtractStopsOnCancel(t *testing.T) {
	src := &fakeSource{total: 100, reported: 100}
	s := NewSampler(openerFor(src), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Extract(ctx, "clip.mp4", t.TempDir(), 20)
	assert.Empty(t, out)
	assert.True(t, src.closed)
}

func TestProbe(t *testing.T) {
	s := NewSampler(openerFor(&fakeSource{total: 90, reported: 90}), zap.NewNop())
	info, err := s.Probe("clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, VideoInfo{TotalFrames: 90, FPS: 30, Width: 640, Height: 480, DurationSeconds: 3}, info)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{total: 5, reported: 5}
	out := NewSampler(openerFor(src), zap.NewNop()).Extract(context.Background(), "clip.mp4", dir, 20)
	require.Len(t, out, 5)

	assert.Equal(t, 5, Cleanup(dir, zap.NewNop()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Equal(t, 0, Cleanup(filepath.Join(dir, "missing"), zap.NewNop()))
}
