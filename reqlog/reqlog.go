// Package reqlog keeps an append-only JSON-lines log of API requests and
// derives aggregate statistics from it.
package reqlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"deepfakeapi/config"
	"deepfakeapi/utils"
)

const TimestampLayout = "2006-01-02 15:04:05"

// Entry is one logged request.
type Entry struct {
	Timestamp      string  `json:"timestamp"`
	Endpoint       string  `json:"endpoint"`
	Method         string  `json:"method"`
	IPAddress      string  `json:"ip_address"`
	UserAgent      string  `json:"user_agent"`
	StatusCode     int     `json:"status_code"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	Error          *string `json:"error"`
}

// Stats summarizes the log.
type Stats struct {
	TotalRequests      int     `json:"total_requests"`
	SuccessfulRequests int     `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
}

// Logger appends entries to a rotating file.
type Logger struct {
	path string
	mu   sync.Mutex
	out  io.WriteCloser
}

func New(cfg config.RequestLogConfig) *Logger {
	return &Logger{
		path: cfg.Path,
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		},
	}
}

func (l *Logger) Path() string { return l.path }

// Log writes e as a single line. A zero timestamp is filled with the current
// local time.
func (l *Logger) Log(e Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().Format(TimestampLayout)
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.out.Write(line)
	return err
}

// Stats reads the whole current log file.
func (l *Logger) Stats() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ReadStats(l.path)
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// ReadStats computes Stats for the log at path. A missing file yields zero
// stats. Lines that are not JSON objects with a status code are skipped.
func ReadStats(path string) (Stats, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	return Aggregate(f)
}

// Aggregate computes Stats over JSON lines read from r. Every JSON object
// counts as a request; only a numeric status_code of 200 counts as a
// success. The average response time only counts entries that carry a
// status_code and a non-zero time.
func Aggregate(r io.Reader) (Stats, error) {
	var (
		st      Stats
		timeSum float64
		timed   int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil || row == nil {
			continue
		}
		st.TotalRequests++
		status, ok := row["status_code"]
		if !ok {
			continue
		}
		if code, ok := number(status); ok && code == 200 {
			st.SuccessfulRequests++
		}
		if ms, ok := number(row["response_time_ms"]); ok && ms != 0 {
			timeSum += ms
			timed++
		}
	}
	if err := sc.Err(); err != nil {
		return Stats{}, err
	}
	if st.TotalRequests > 0 {
		st.SuccessRate = utils.Round2(float64(st.SuccessfulRequests) / float64(st.TotalRequests) * 100)
	}
	if timed > 0 {
		st.AvgResponseTimeMs = utils.Round2(timeSum / float64(timed))
	}
	return st, nil
}

// number decodes a JSON number. Strings, null and absent values are not
// numbers.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
