package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	*httptest.ResponseRecorder
	last string
}

func (r *recordingWriter) RecordError(msg string) { r.last = msg }

func TestRespondWithErrorRecordsMessage(t *testing.T) {
	w := &recordingWriter{ResponseRecorder: httptest.NewRecorder()}
	RespondWithError(w, http.StatusBadRequest, "No file uploaded")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file uploaded", w.last)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "No file uploaded", body["error"])
}

type wrappingWriter struct {
	http.ResponseWriter
}

func (w wrappingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func TestRecordErrorUnwraps(t *testing.T) {
	inner := &recordingWriter{ResponseRecorder: httptest.NewRecorder()}
	RespondWithError(wrappingWriter{wrappingWriter{inner}}, http.StatusNotFound, "File not found")

	assert.Equal(t, "File not found", inner.last)
	assert.Equal(t, http.StatusNotFound, inner.Code)

	// Writers without a recorder are left alone.
	RecordError(httptest.NewRecorder(), "ignored")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusOf(NewHTTPError(http.StatusNotFound, "File not found")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(fmt.Errorf("parse: %w", &http.MaxBytesError{Limit: 10})))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("disk on fire")))

	wrapped := fmt.Errorf("saving: %w", &HTTPError{Status: http.StatusBadRequest, Message: "bad"})
	assert.Equal(t, http.StatusBadRequest, StatusOf(wrapped))
}

func TestClientIPIgnoresForwardingHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "10.0.0.7", ClientIP(r))
}

func TestTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", ""})
	require.NoError(t, err)
	assert.True(t, tp.Contains("10.1.2.3"))
	assert.True(t, tp.Contains("192.0.2.1"))
	assert.False(t, tp.Contains("192.0.2.2"))
	assert.False(t, tp.Contains("not-an-ip"))

	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestForwardedFor(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9, 10.0.0.2")
	assert.Equal(t, "203.0.113.9", tp.ForwardedFor(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", tp.ForwardedFor(r))

	// Untrusted peers cannot choose their address.
	r.RemoteAddr = "198.51.100.4:40000"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "198.51.100.4", tp.ForwardedFor(r))

	var none TrustedProxies
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "10.0.0.7", none.ForwardedFor(r))
}

func TestBytesToMB(t *testing.T) {
	assert.Equal(t, 1.0, BytesToMB(1024*1024))
	assert.Equal(t, 0.5, BytesToMB(512*1024))
	assert.Equal(t, 60.0, BytesToMB(60*1024*1024))
}
