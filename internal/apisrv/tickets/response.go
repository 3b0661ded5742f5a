package tickets

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errors

type FieldViolation struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	Code    string           `json:"code"`
	Message string           `json:"message"`
	Details []FieldViolation `json:"details,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrStatus converts err into a response. Errors that carry no gRPC status
// are reported as internal.
func ErrStatus(err error) render.Renderer {
	st, ok := status.FromError(err)
	if !ok {
		st = status.Convert(gerr.Internal(err))
	}

	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: runtime.HTTPStatusFromCode(st.Code()),
		Code:           st.Code().String(),
		Message:        st.Message(),
	}
	for _, d := range st.Details() {
		br, ok := d.(*errdetails.BadRequest)
		if !ok {
			continue
		}
		for _, fv := range br.GetFieldViolations() {
			resp.Details = append(resp.Details, FieldViolation{
				Field:       fv.GetField(),
				Description: fv.GetDescription(),
			})
		}
	}
	return resp
}

func ErrInvalidRequest(err error) render.Renderer {
	return ErrStatus(status.Error(codes.InvalidArgument, err.Error()))
}

// renderErr logs unexpected failures and writes the error response.
func renderErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrStatus(err).(*ErrResponse)
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		slog.Default().ErrorContext(r.Context(), "request failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
	_ = render.Render(w, r, resp)
}

// reservation

type RequestAcceptedResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestId string `json:"requestId"`
}

func (rd *RequestAcceptedResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusAccepted)
	return nil
}

type ReservationResponse struct {
	*entity.Reservation
}

func (rd *ReservationResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func NewReservationListResponse(rs []entity.Reservation) []render.Renderer {
	list := []render.Renderer{}
	for i := range rs {
		list = append(list, &ReservationResponse{Reservation: &rs[i]})
	}
	return list
}

type PurchaseResponse struct {
	Success     bool     `json:"success"`
	TicketCount int      `json:"ticketCount"`
	TicketIds   []string `json:"ticketIds"`
}

func (rd *PurchaseResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// waitlist

type WaitlistEntryResponse struct {
	*entity.WaitlistEntry
}

func (rd *WaitlistEntryResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func NewWaitlistListResponse(ws []entity.WaitlistEntry) []render.Renderer {
	list := []render.Renderer{}
	for i := range ws {
		list = append(list, &WaitlistEntryResponse{WaitlistEntry: &ws[i]})
	}
	return list
}

type ClaimResponse struct {
	Success       bool      `json:"success"`
	ReservationId string    `json:"reservationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (rd *ClaimResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// inventory

type InventoryResponse struct {
	*entity.Inventory
}

func (rd *InventoryResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func NewInventoryListResponse(invs []entity.Inventory) []render.Renderer {
	list := []render.Renderer{}
	for i := range invs {
		list = append(list, &InventoryResponse{Inventory: &invs[i]})
	}
	return list
}

// admin

type CreatedResponse struct {
	Success bool   `json:"success"`
	Id      string `json:"id"`
}

func (rd *CreatedResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusCreated)
	return nil
}

// tasks

type TaskResponse struct {
	Success bool   `json:"success"`
	Task    string `json:"task"`
}

func (rd *TaskResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}
