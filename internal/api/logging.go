package api

import (
	"log"
	"net/http"
	"strconv"
	"time"
)

// ANSI sequences for the request log.
const (
	colorCyan      = "\033[36m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
	colorReset     = "\033[0m"
)

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps the live tail streaming through the middleware.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusCodeColor(code int) string {
	var c string
	switch code / 100 {
	case 2:
		c = colorBoldGreen
	case 3:
		c = colorYellow
	case 4, 5:
		c = colorBoldRed
	default:
		return strconv.Itoa(code)
	}
	return c + strconv.Itoa(code) + colorReset
}

// LoggingMiddleware writes one line per request with its status and latency.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		began := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(began)
		log.Printf("[%s] %s %s%s%s %.2fms",
			statusCodeColor(rec.status), r.Method, colorCyan, r.RequestURI, colorReset,
			float64(elapsed.Microseconds())/1000)
	})
}
