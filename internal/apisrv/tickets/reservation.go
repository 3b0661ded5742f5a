package tickets

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/form"
	"github.com/jekabolt/grbpwr-tickets/internal/middleware"
	"github.com/jekabolt/grbpwr-tickets/internal/reservation"
)

type ReservationRequest struct {
	EventId string              `json:"eventId"`
	Tickets []entity.TicketLine `json:"tickets"`
}

func (rr *ReservationRequest) Bind(r *http.Request) error {
	return nil
}

// requestReservation validates the request and hands it to the scheduler.
// The outcome is delivered to the user as a notification.
func (s *Server) requestReservation(w http.ResponseWriter, r *http.Request) {
	data := &ReservationRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	req := &entity.ReserveRequest{
		RequestId: uuid.NewString(),
		UserId:    caller(r),
		EventId:   data.EventId,
		Tickets:   data.Tickets,
		Timestamp: s.clock.Now(),
	}
	if err := (&form.ReserveRequest{ReserveRequest: req}).Validate(); err != nil {
		renderErr(w, r, "requestReservation", err)
		return
	}

	// only well-formed requests count against the limit
	if err := s.limiter.CheckReservation(req.UserId, middleware.GetClientIP(r.Context())); err != nil {
		renderErr(w, r, "requestReservation", err)
		return
	}

	err := s.scheduler.Schedule(r.Context(), nil, reservation.TaskProcessReservation, req, req.Timestamp)
	if err != nil {
		renderErr(w, r, "requestReservation", err)
		return
	}

	_ = render.Render(w, r, &RequestAcceptedResponse{
		Success:   true,
		Message:   "Reservation request accepted",
		RequestId: req.RequestId,
	})
}

func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	rs, err := s.engine.ListReservations(r.Context(), caller(r))
	if err != nil {
		renderErr(w, r, "listReservations", err)
		return
	}
	_ = render.RenderList(w, r, NewReservationListResponse(rs))
}

func (s *Server) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.GetReservation(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, r, "getReservation", err)
		return
	}
	_ = render.Render(w, r, &ReservationResponse{Reservation: res})
}

func (s *Server) completePurchase(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CompletePurchase(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		renderErr(w, r, "completePurchase", err)
		return
	}
	_ = render.Render(w, r, &PurchaseResponse{
		Success:     true,
		TicketCount: len(res.TicketIds),
		TicketIds:   res.TicketIds,
	})
}
