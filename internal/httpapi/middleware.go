package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const maxLoggedErrorBytes = 512

// statusRecorder captures the status code and the first maxLogBytes of the
// body so failed responses can be logged.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	maxLogBytes  int
	bytesWritten int
	logBody      bytes.Buffer
	truncated    bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if remaining := r.maxLogBytes - r.logBody.Len(); remaining > 0 {
		if len(p) > remaining {
			r.logBody.Write(p[:remaining])
			r.truncated = true
		} else {
			r.logBody.Write(p)
		}
	} else if len(p) > 0 {
		r.truncated = true
	}

	n, err := r.ResponseWriter.Write(p)
	r.bytesWritten += n
	return n, err
}

// observe records the route metrics and writes one access log line per request.
func (a *API) observe(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			maxLogBytes:    maxLoggedErrorBytes,
		}

		next.ServeHTTP(recorder, r)

		elapsed := time.Since(start)
		a.metrics.ObserveRequest(route, recorder.statusCode, elapsed)

		entry := a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      recorder.statusCode,
			"bytes":       recorder.bytesWritten,
			"duration_ms": elapsed.Milliseconds(),
		})
		switch {
		case recorder.statusCode >= http.StatusInternalServerError:
			entry.WithField("body", recorder.logBody.String()).Error("request failed")
		case recorder.statusCode >= http.StatusBadRequest:
			entry.WithFields(logrus.Fields{
				"body":      recorder.logBody.String(),
				"truncated": recorder.truncated,
			}).Warn("request rejected")
		default:
			entry.Info("request completed")
		}
	})
}
