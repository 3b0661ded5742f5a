package tickets

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
)

const maxTaskPayload = 64 << 10

// runTask runs a task delivered by an external scheduler. A non-2xx
// response asks the scheduler to redeliver.
func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(taskSecretHeader)
	if s.c.TaskSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.c.TaskSecret)) != 1 {
		_ = render.Render(w, r, ErrStatus(gerr.BadTaskSecret))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTaskPayload))
	if err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.scheduler.Dispatch(r.Context(), name, payload); err != nil {
		renderErr(w, r, "runTask", err)
		return
	}
	_ = render.Render(w, r, &TaskResponse{Success: true, Task: name})
}
