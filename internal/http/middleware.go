package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
)

// WithRequestID genera o propaga un Request ID único por request. Si el
// cliente manda X-Request-ID se respeta; si no, se genera. El ID sale en
// el header de respuesta y entra al logger del contexto.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			var b [16]byte
			_, _ = rand.Read(b[:])
			rid = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", rid)

		l := logger.L().With(logger.RequestID(rid))
		ctx := logger.ToContext(r.Context(), l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRecover corta el panic, loguea el stack y responde 500.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.From(r.Context()).Error("panic recovered",
					logger.Any("panic", rec), logger.Path(r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithMetrics observa método, path normalizado, status y latencia.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		pathLabel := normalizePath(r.URL.Path)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			metrics.HTTPDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequests.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

// WithAccessLog deja una línea por request terminada.
func WithAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		logger.From(r.Context()).Info("http request",
			logger.Method(r.Method), logger.Path(r.URL.Path),
			logger.Status(status), logger.Duration(time.Since(start)))
	})
}

var (
	uuidSegmentRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hexSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// normalizePath colapsa los segmentos dinámicos (uuids, ids largos) en
// :param para que la cardinalidad de las labels no explote.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}
	segments := strings.Split(clean, "/")
	var out []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	return uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg)
}
