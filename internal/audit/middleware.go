package audit

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-telco/internal/common"
)

// HTTPRecorder writes an audit row for every admin write that succeeded, and
// for PARTIAL_FAILURE responses, whose rows were committed before a later
// step failed. Other rejected and failed requests changed nothing and leave no
// row. The insert runs inline after the handler so the row exists before the
// client can act on the response.
type HTTPRecorder struct {
	Service *Service
	OnError func(error)
}

// HTTPConfig names what a route changes. The entity id comes from the
// ResourceIDParam route parameter, or for create routes from the data.id
// field of the response.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
}

// Middleware returns the chi middleware for one route.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r.Service == nil || !r.Service.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			var body bytes.Buffer
			ww.Tee(&body)
			next.ServeHTTP(ww, req)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			partial := common.IsPartialWrite(ww.Header())
			if status >= http.StatusBadRequest && !partial {
				return
			}
			resp := parseResponse(body.Bytes())
			entityID := ""
			if cfg.ResourceIDParam != "" {
				entityID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			if entityID == "" {
				entityID = resp.entityID()
			}
			var metadata map[string]any
			if partial {
				metadata = map[string]any{"partial_failure": true, "failed_step": resp.Error.Details.Step}
			}
			err := r.Service.RecordRequest(req.Context(), actorOf(req), cfg.Action, cfg.ResourceType, entityID, req, status, metadata)
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

// response is the part of a JSON envelope that names the written row:
// data.id, data.request.id for payment requests, or error.details.id on a
// partial failure.
type response struct {
	Data struct {
		ID      string `json:"id"`
		Request struct {
			ID string `json:"id"`
		} `json:"request"`
	} `json:"data"`
	Error struct {
		Details struct {
			ID   string `json:"id"`
			Step string `json:"step"`
		} `json:"details"`
	} `json:"error"`
}

func parseResponse(body []byte) response {
	var resp response
	if len(body) > 0 {
		_ = json.Unmarshal(body, &resp)
	}
	return resp
}

func (r response) entityID() string {
	switch {
	case r.Data.ID != "":
		return r.Data.ID
	case r.Data.Request.ID != "":
		return r.Data.Request.ID
	}
	return r.Error.Details.ID
}

func actorOf(req *http.Request) Actor {
	if userID, ok := common.UserID(req.Context()); ok && userID != "" {
		return Actor{Kind: ActorKindUser, UserID: &userID}
	}
	return Actor{Kind: ActorKindAnonymous}
}
