package filemgr

import "errors"

type FileType string

const (
	TypeImage   FileType = "image"
	TypeVideo   FileType = "video"
	TypeUnknown FileType = "unknown"
)

// MaxFileSize is the default upload ceiling, 50MB.
const MaxFileSize int64 = 50 * 1024 * 1024

var (
	AllowedExtensions = map[FileType][]string{
		TypeImage: {".jpg", ".jpeg", ".png", ".webp"},
		TypeVideo: {".mp4", ".avi", ".mov", ".mkv"},
	}

	ErrNoFilename       = errors.New("no filename provided")
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrFileTooLarge     = errors.New("file size exceeds limit")
	ErrInvalidName      = errors.New("invalid file name")
)
