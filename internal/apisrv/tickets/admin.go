package tickets

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/form"
)

type EventRequest struct {
	*entity.EventFull
}

func (er *EventRequest) Bind(r *http.Request) error {
	if er.EventFull == nil {
		return fmt.Errorf("missing event")
	}
	return nil
}

type UserRequest struct {
	*entity.User
}

func (ur *UserRequest) Bind(r *http.Request) error {
	if ur.User == nil {
		return fmt.Errorf("missing user")
	}
	return nil
}

func (s *Server) addEvent(w http.ResponseWriter, r *http.Request) {
	data := &EventRequest{EventFull: &entity.EventFull{}}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := (&form.AddEventRequest{EventFull: data.EventFull}).Validate(); err != nil {
		renderErr(w, r, "addEvent", err)
		return
	}

	ev := data.EventFull
	ev.Event.CreatedAt = s.clock.Now()
	for i := range ev.TicketTypes {
		ev.TicketTypes[i].EventId = ev.Event.Id
	}

	if err := s.repo.Events().AddEvent(r.Context(), ev); err != nil {
		if s.repo.IsErrUniqueViolation(err) {
			err = gerr.AlreadyExists("event", ev.Event.Id)
		}
		renderErr(w, r, "addEvent", err)
		return
	}
	_ = render.Render(w, r, &CreatedResponse{Success: true, Id: ev.Event.Id})
}

func (s *Server) addUser(w http.ResponseWriter, r *http.Request) {
	data := &UserRequest{User: &entity.User{}}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if err := (&form.AddUserRequest{User: data.User}).Validate(); err != nil {
		renderErr(w, r, "addUser", err)
		return
	}

	data.User.CreatedAt = s.clock.Now()
	if err := s.repo.Users().AddUser(r.Context(), data.User); err != nil {
		if s.repo.IsErrUniqueViolation(err) {
			err = gerr.AlreadyExists("user", data.User.Id)
		}
		renderErr(w, r, "addUser", err)
		return
	}
	_ = render.Render(w, r, &CreatedResponse{Success: true, Id: data.User.Id})
}
