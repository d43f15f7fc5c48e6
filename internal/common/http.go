package common

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ClientIP returns the host part of r.RemoteAddr. The router runs chi's
// RealIP first, which has already replaced RemoteAddr with the address the
// load balancer reported.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// UUIDParam parses the named chi route parameter as a UUID. A malformed value
// yields a 400 BAD_REQUEST AppError.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, NewAppError("BAD_REQUEST", "invalid "+name, http.StatusBadRequest, err)
	}
	return id, nil
}
