package security

import (
	"mime"
	"net/http"

	"github.com/noah-isme/backend-telco/internal/common"
)

// DefaultMaxBody bounds JSON payloads. Campaign bodies are the largest.
const DefaultMaxBody int64 = 1 << 20

// BodyLimit guards write requests: bodies are capped at Max bytes and, with
// RequireJSON, anything other than application/json is refused.
type BodyLimit struct {
	Max         int64
	RequireJSON bool
}

// Middleware rejects a declared oversized body up front and caps the rest
// while the handler reads; common.DecodeJSON turns an overrun into 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody || !hasBody(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if b.RequireJSON && r.ContentLength != 0 && !isJSON(r.Header.Get("Content-Type")) {
			common.JSONError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "content type must be application/json", nil)
			return
		}
		if b.Max > 0 {
			if r.ContentLength > b.Max {
				common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		}
		next.ServeHTTP(w, r)
	})
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
