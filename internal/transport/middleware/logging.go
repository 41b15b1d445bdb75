package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/pkg/logger"
)

const (
	maxCapturedBody = 1 << 20
	maxLoggedBody   = 4 << 10
	filtered        = "[FILTERED]"
)

// secretFields never reach the logs: credentials, tokens and provider signatures.
var secretFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"signature",
	"api_key",
	"session",
	"credential",
	"cookie",
}

// piiFields are the payer details a provider payload carries.
var piiFields = []string{
	"email",
	"contact",
	"vpa",
	"card",
	"acquirer_data",
	"bank_account",
}

func LoggingMiddleware(lg *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := logger.Scoped(r.Context(), lg)

			logRequest(l, r)

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			logResponse(l, r, rec, time.Since(start))
		})
	}
}

// responseRecorder keeps the status and the first maxCapturedBody bytes written.
type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
	body   bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	if room := maxCapturedBody - rw.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		rw.body.Write(b[:room])
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func logRequest(l *slog.Logger, r *http.Request) {
	var raw []byte
	if r.Body != nil && r.Body != http.NoBody {
		raw, _ = io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))
	}

	l.Info("incoming request",
		"method", r.Method,
		"path", r.URL.Path,
		"query", maskQuery(r.URL.Query()),
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", maskHeaders(r.Header),
		"body", maskBody(r.Header.Get("Content-Type"), raw),
	)
}

func logResponse(l *slog.Logger, r *http.Request, rw *responseRecorder, duration time.Duration) {
	status := rw.status
	if status == 0 {
		status = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	}

	l.Log(r.Context(), level, "response",
		"status_code", status,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
		"body", maskBody(rw.Header().Get("Content-Type"), rw.body.Bytes()),
	)
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, f := range secretFields {
		if strings.Contains(k, f) {
			return true
		}
	}
	for _, f := range piiFields {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if sensitiveKey(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func maskQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	masked := make(url.Values, len(values))
	for k, v := range values {
		if sensitiveKey(k) {
			masked[k] = []string{filtered}
			continue
		}
		masked[k] = v
	}
	return masked.Encode()
}

// maskBody renders a JSON or form body with sensitive keys replaced. Other
// content types are logged by media type only.
func maskBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	var out string
	switch mediaType {
	case "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return "[UNPARSEABLE FORM]"
		}
		out = maskQuery(form)
	case "", "application/json":
		var data interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			return "[NON-JSON BODY]"
		}
		b, err := json.Marshal(maskJSON(data))
		if err != nil {
			return "[UNLOGGABLE BODY]"
		}
		out = string(b)
	default:
		return "[" + mediaType + "]"
	}

	if len(out) > maxLoggedBody {
		return out[:maxLoggedBody] + "...(truncated)"
	}
	return out
}

func maskJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if sensitiveKey(key) {
				out[key] = filtered
				continue
			}
			out[key] = maskJSON(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = maskJSON(item)
		}
		return out
	default:
		return v
	}
}
