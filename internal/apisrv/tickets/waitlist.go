package tickets

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

func (s *Server) listWaitlist(w http.ResponseWriter, r *http.Request) {
	ws, err := s.engine.ListWaitlist(r.Context(), caller(r))
	if err != nil {
		renderErr(w, r, "listWaitlist", err)
		return
	}
	_ = render.RenderList(w, r, NewWaitlistListResponse(ws))
}

func (s *Server) getWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	we, err := s.engine.GetWaitlistEntry(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, r, "getWaitlistEntry", err)
		return
	}
	_ = render.Render(w, r, &WaitlistEntryResponse{WaitlistEntry: we})
}

func (s *Server) claimWaitlisted(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ClaimWaitlisted(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, r, "claimWaitlisted", err)
		return
	}
	_ = render.Render(w, r, &ClaimResponse{
		Success:       true,
		ReservationId: res.ReservationId,
		ExpiresAt:     res.ExpiresAt,
	})
}

func (s *Server) listInventory(w http.ResponseWriter, r *http.Request) {
	invs, err := s.engine.ListInventory(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		renderErr(w, r, "listInventory", err)
		return
	}
	_ = render.RenderList(w, r, NewInventoryListResponse(invs))
}
