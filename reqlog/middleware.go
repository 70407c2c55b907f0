package reqlog

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"deepfakeapi/utils"
)

// recorder captures the status of a response and the error message written
// through utils.RespondWithError.
type recorder struct {
	http.ResponseWriter
	status int
	errMsg string
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *recorder) RecordError(msg string) { rw.errMsg = msg }

func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware logs every request except those for skipped paths.
func Middleware(l *Logger, logger *zap.Logger, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			e := Entry{
				Endpoint:       r.URL.Path,
				Method:         r.Method,
				IPAddress:      utils.ClientIP(r),
				UserAgent:      r.UserAgent(),
				StatusCode:     rec.status,
				ResponseTimeMs: utils.Round2(float64(time.Since(start).Microseconds()) / 1000),
			}
			if rec.errMsg != "" {
				e.Error = &rec.errMsg
			}
			if err := l.Log(e); err != nil {
				logger.Warn("request log write failed", zap.Error(err))
			}
		})
	}
}
