package filemgr

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"deepfakeapi/utils"
)

const (
	// formOverhead is allowed on top of the file bytes for boundaries, part
	// headers and small fields.
	formOverhead = 1 << 20
	formMemory   = 32 << 20
)

// BodyLimit is the request body cap for a form carrying files files of at
// most fileMax bytes each. Bodies up to twice the file limit are still read
// so the oversize message can report the real size.
func BodyLimit(fileMax int64, files int) int64 {
	return int64(files)*2*fileMax + formOverhead
}

// ParseUploadForm caps r.Body at bodyLimit and parses the multipart form.
// Requests that are not multipart are left unparsed; FormFile then reports
// them as missing a file.
func ParseUploadForm(w http.ResponseWriter, r *http.Request, bodyLimit, fileMax int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	err := r.ParseMultipartForm(formMemory)
	if err == nil {
		return nil
	}
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		return nil
	case errors.As(err, &mbe), strings.Contains(err.Error(), "request body too large"):
		return TooLarge(fileMax)
	}
	return &utils.HTTPError{Status: http.StatusBadRequest, Message: "Invalid upload: " + err.Error(), Err: err}
}

// FormFile returns the header of the first file found under fields, in
// order. missing is the 400 message used when none is present.
func FormFile(r *http.Request, missing string, fields ...string) (*multipart.FileHeader, error) {
	if r.MultipartForm != nil {
		for _, field := range fields {
			if fhs := r.MultipartForm.File[field]; len(fhs) > 0 {
				return fhs[0], nil
			}
		}
	}
	return nil, utils.NewHTTPError(http.StatusBadRequest, "%s", missing)
}

// FormFiles returns every file under field.
func FormFiles(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

// FormValue reads a field from the parsed form, falling back to the query.
func FormValue(r *http.Request, key string) string {
	if r.MultipartForm != nil {
		if vs := r.MultipartForm.Value[key]; len(vs) > 0 {
			return vs[0]
		}
	}
	return r.URL.Query().Get(key)
}

// Receive validates fh and stores it in dir under a unique name. It returns
// the validated file and its stored path.
func Receive(fh *multipart.FileHeader, dir string, max int64) (UploadedFile, string, error) {
	uf, err := ValidateFilename(fh.Filename)
	if err != nil {
		return uf, "", err
	}
	if err := ValidateSize(fh.Size, max); err != nil {
		return uf, "", err
	}
	src, err := fh.Open()
	if err != nil {
		return uf, "", err
	}
	defer src.Close()

	path, written, err := SaveUpload(src, dir, UniqueName(fh.Filename), max)
	if err != nil {
		return uf, "", err
	}
	uf.Size = written
	return uf, path, nil
}
