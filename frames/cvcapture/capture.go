// Package cvcapture opens videos for frame grabbing through OpenCV.
package cvcapture

import (
	"fmt"

	"gocv.io/x/gocv"

	"deepfakeapi/frames"
)

type capture struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Open is a frames.Opener backed by gocv.VideoCaptureFile.
func Open(path string) (frames.Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open video %s: capture not opened", path)
	}
	return &capture{vc: vc, mat: gocv.NewMat()}, nil
}

func (c *capture) Info() frames.VideoInfo {
	total := int(c.vc.Get(gocv.VideoCaptureFrameCount))
	fps := c.vc.Get(gocv.VideoCaptureFPS)
	info := frames.VideoInfo{
		TotalFrames: total,
		FPS:         int(fps),
		Width:       int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:      int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if fps > 0 {
		info.DurationSeconds = int(float64(total) / fps)
	}
	return info
}

func (c *capture) Grab() bool {
	// Crucial to reuse the same Mat; every Read overwrites it.
	return c.vc.Read(&c.mat) && !c.mat.Empty()
}

func (c *capture) WriteFrame(path string) error {
	if !gocv.IMWrite(path, c.mat) {
		return fmt.Errorf("encode frame to %s", path)
	}
	return nil
}

func (c *capture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}
