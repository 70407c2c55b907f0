package filemgr

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"deepfakeapi/utils"
)

// UploadedFile describes a validated upload.
type UploadedFile struct {
	Filename  string   `json:"filename"`
	Extension string   `json:"extension"`
	Type      FileType `json:"type"`
	Size      int64    `json:"size,omitempty"`
}

// Extension returns the lower-cased extension of name including the dot.
// Leading dots belong to the name, so ".jpg" has no extension.
func Extension(name string) string {
	base := strings.TrimLeft(filepath.Base(name), ".")
	return strings.ToLower(filepath.Ext(base))
}

func IsImage(name string) bool {
	return slices.Contains(AllowedExtensions[TypeImage], Extension(name))
}

func IsVideo(name string) bool {
	return slices.Contains(AllowedExtensions[TypeVideo], Extension(name))
}

func IsAllowed(name string) bool {
	return IsImage(name) || IsVideo(name)
}

// FileTypeOf infers the file type from the extension alone.
func FileTypeOf(name string) FileType {
	switch {
	case IsImage(name):
		return TypeImage
	case IsVideo(name):
		return TypeVideo
	default:
		return TypeUnknown
	}
}

// AllowedList renders every allowed extension, images first.
func AllowedList() string {
	all := append(slices.Clone(AllowedExtensions[TypeImage]), AllowedExtensions[TypeVideo]...)
	return strings.Join(all, ", ")
}

// VideoList renders the allowed video extensions.
func VideoList() string {
	return strings.Join(AllowedExtensions[TypeVideo], ", ")
}

// ValidateFilename checks name against the extension allow-list. Content is
// never inspected.
func ValidateFilename(name string) (UploadedFile, error) {
	if strings.TrimSpace(name) == "" {
		return UploadedFile{}, &utils.HTTPError{Status: http.StatusBadRequest, Message: "No filename provided", Err: ErrNoFilename}
	}
	if !IsAllowed(name) {
		return UploadedFile{}, &utils.HTTPError{
			Status:  http.StatusBadRequest,
			Message: "File type not allowed. Allowed types: " + AllowedList(),
			Err:     ErrInvalidExtension,
		}
	}
	return UploadedFile{
		Filename:  name,
		Extension: Extension(name),
		Type:      FileTypeOf(name),
	}, nil
}

// ValidateSize rejects sizes above max. A size equal to max passes.
func ValidateSize(size, max int64) error {
	if size > max {
		return tooLarge(size, max)
	}
	return nil
}

// ValidateFileSize stats path and applies ValidateSize.
func ValidateFileSize(path string, max int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return ValidateSize(info.Size(), max)
}

func tooLarge(size, max int64) error {
	msg := fmt.Sprintf("File too large. Maximum size: %sMB", formatMB(max))
	if size > 0 {
		msg = fmt.Sprintf("File too large (%.2fMB). Maximum size: %sMB", float64(size)/(1024*1024), formatMB(max))
	}
	return &utils.HTTPError{Status: http.StatusRequestEntityTooLarge, Message: msg, Err: ErrFileTooLarge}
}

// TooLarge builds the oversize error for a request whose body was cut off
// before the size was known.
func TooLarge(max int64) error {
	return tooLarge(0, max)
}

func formatMB(n int64) string {
	mb := float64(n) / (1024 * 1024)
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("%d", int64(mb))
	}
	return fmt.Sprintf("%.2f", mb)
}

var unsafeChars = regexp.MustCompile(`[^\w.\-]`)

// SanitizeFilename strips any directory part and replaces characters outside
// [A-Za-z0-9_.-] with underscores.
func SanitizeFilename(name string) string {
	clean := unsafeChars.ReplaceAllString(filepath.Base(name), "_")
	if clean == "" || clean == "." || clean == ".." {
		return "file"
	}
	return clean
}

// UniqueName prefixes the sanitized original name with the current unix time.
func UniqueName(original string) string {
	return fmt.Sprintf("%d_%s", time.Now().Unix(), SanitizeFilename(original))
}

// ResolveStored joins a client supplied file name onto dir, refusing anything
// that would leave dir.
func ResolveStored(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", &utils.HTTPError{Status: http.StatusBadRequest, Message: "Invalid file name", Err: ErrInvalidName}
	}
	return filepath.Join(dir, name), nil
}
