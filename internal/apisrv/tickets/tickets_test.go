package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/jekabolt/grbpwr-tickets/internal/auth/jwt"
	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jekabolt/grbpwr-tickets/internal/notify"
	"github.com/jekabolt/grbpwr-tickets/internal/ratelimit"
	"github.com/jekabolt/grbpwr-tickets/internal/reservation"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler"
	"github.com/jekabolt/grbpwr-tickets/internal/store/bunt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

const (
	taskSecret = "task-secret"
	ttl        = 10 * time.Minute
)

type env struct {
	srv     *httptest.Server
	store   *bunt.Store
	engine  *reservation.Engine
	sch     *scheduler.Scheduler
	clock   *clock.Mock
	jwtAuth *jwtauth.JWTAuth
}

// newEnv serves the API over an in-memory store holding event e1 with
// capacity ga for ticket type ga.
func newEnv(t *testing.T, ga int, rl *ratelimit.Config) *env {
	s, err := bunt.New(bunt.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clk := clock.NewMock(t0)
	sch := scheduler.New(&scheduler.Config{RetryBackoff: time.Second}, s, clk)
	e := reservation.New(&reservation.Config{ReservationTTL: ttl}, s, sch, notify.NewLog(), clk)
	e.RegisterTasks(sch)

	ja, err := jwt.New(&jwt.Config{Secret: "test-secret"})
	require.NoError(t, err)

	limiter := ratelimit.New(rl, clk)
	t.Cleanup(limiter.Stop)

	err = s.Events().AddEvent(context.Background(), &entity.EventFull{
		Event: entity.Event{
			Id:         "e1",
			Name:       "Closing night",
			LocationId: "main-hall",
			StartTime:  t0.Add(48 * time.Hour),
			EndTime:    t0.Add(52 * time.Hour),
			CreatedAt:  t0,
		},
		TicketTypes: []entity.TicketType{{
			Id:            "ga",
			EventId:       "e1",
			Name:          "General admission",
			Price:         decimal.RequireFromString("40.00"),
			Currency:      "EUR",
			TotalQuantity: ga,
		}},
	})
	require.NoError(t, err)

	h := New(&Config{TaskSecret: taskSecret}, e, sch, s, limiter, ja, clk)
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &env{srv: srv, store: s, engine: e, sch: sch, clock: clk, jwtAuth: ja}
}

func (v *env) token(t *testing.T, userId string, admin bool) string {
	t.Helper()
	tok, err := jwt.NewToken(v.jwtAuth, time.Hour, userId, admin)
	require.NoError(t, err)
	return tok
}

// do sends body as JSON and decodes the response into out when it is not nil.
func (v *env) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequest(method, v.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (v *env) runDue(t *testing.T) {
	t.Helper()
	_, err := v.sch.RunDue(context.Background())
	require.NoError(t, err)
}

func reserveBody(q int) map[string]any {
	return map[string]any{
		"eventId": "e1",
		"tickets": []map[string]any{{"ticketTypeId": "ga", "quantity": q}},
	}
}

func TestUnauthenticated(t *testing.T) {
	v := newEnv(t, 5, nil)

	errResp := ErrResponse{}
	code := v.do(t, http.MethodGet, "/api/reservations", "", nil, &errResp)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthenticated", errResp.Code)

	code = v.do(t, http.MethodGet, "/api/reservations", "not-a-token", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestReservationFlow(t *testing.T) {
	v := newEnv(t, 5, nil)
	tok := v.token(t, "u1", false)

	accepted := RequestAcceptedResponse{}
	code := v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(2), &accepted)
	require.Equal(t, http.StatusAccepted, code)
	assert.True(t, accepted.Success)
	assert.NotEmpty(t, accepted.RequestId)

	// nothing is held until the scheduler processes the request
	var list []entity.Reservation
	code = v.do(t, http.MethodGet, "/api/reservations", tok, nil, &list)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, list)

	v.runDue(t)

	code = v.do(t, http.MethodGet, "/api/reservations", tok, nil, &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	res := list[0]
	assert.Equal(t, accepted.RequestId, res.RequestId)
	assert.Equal(t, entity.ReservationPending, res.Status)
	assert.Equal(t, 2, res.Quantity())

	got := entity.Reservation{}
	code = v.do(t, http.MethodGet, "/api/reservations/"+res.Id, tok, nil, &got)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, res.Id, got.Id)

	purchase := PurchaseResponse{}
	code = v.do(t, http.MethodPost, "/api/reservations/"+res.Id+"/complete", tok, nil, &purchase)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, purchase.Success)
	assert.Equal(t, 2, purchase.TicketCount)
	assert.Len(t, purchase.TicketIds, 2)

	errResp := ErrResponse{}
	code = v.do(t, http.MethodPost, "/api/reservations/"+res.Id+"/complete", tok, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "FailedPrecondition", errResp.Code)

	var invs []entity.Inventory
	code = v.do(t, http.MethodGet, "/api/events/e1/inventory", tok, nil, &invs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, invs, 1)
	assert.Equal(t, 3, invs[0].AvailableQuantity)
	assert.Equal(t, 2, invs[0].SoldQuantity)
}

func TestRequestReservationValidation(t *testing.T) {
	v := newEnv(t, 5, nil)
	tok := v.token(t, "u1", false)

	errResp := ErrResponse{}
	code := v.do(t, http.MethodPost, "/api/reservations", tok, map[string]any{"eventId": "e1"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidArgument", errResp.Code)
	require.Len(t, errResp.Details, 1)
	assert.Equal(t, "tickets", errResp.Details[0].Field)

	req, err := http.NewRequest(http.MethodPost, v.srv.URL+"/api/reservations", bytes.NewBufferString("{"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestReservationRateLimited(t *testing.T) {
	v := newEnv(t, 5, &ratelimit.Config{Window: time.Minute, MaxPerUser: 1})
	tok := v.token(t, "u1", false)

	code := v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(1), nil)
	require.Equal(t, http.StatusAccepted, code)

	errResp := ErrResponse{}
	code = v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(1), &errResp)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "ResourceExhausted", errResp.Code)

	// another user has its own budget
	code = v.do(t, http.MethodPost, "/api/reservations", v.token(t, "u2", false), reserveBody(1), nil)
	assert.Equal(t, http.StatusAccepted, code)
}

func TestInvalidRequestsDoNotSpendRateLimit(t *testing.T) {
	v := newEnv(t, 5, &ratelimit.Config{Window: time.Minute, MaxPerUser: 1})
	tok := v.token(t, "u1", false)

	for i := 0; i < 3; i++ {
		code := v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(0), nil)
		require.Equal(t, http.StatusBadRequest, code)
	}

	code := v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(1), nil)
	assert.Equal(t, http.StatusAccepted, code)
	code = v.do(t, http.MethodPost, "/api/reservations", tok, reserveBody(1), nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestReservationAccess(t *testing.T) {
	v := newEnv(t, 5, nil)
	res, err := v.engine.Reserve(context.Background(), &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
	})
	require.NoError(t, err)

	other := v.token(t, "u2", false)
	code := v.do(t, http.MethodGet, "/api/reservations/"+res.ReservationId, other, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code = v.do(t, http.MethodPost, "/api/reservations/"+res.ReservationId+"/complete", other, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code = v.do(t, http.MethodGet, "/api/reservations/missing", other, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = v.do(t, http.MethodGet, "/api/events/missing/inventory", other, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWaitlistClaim(t *testing.T) {
	v := newEnv(t, 1, nil)
	ctx := context.Background()

	_, err := v.engine.Reserve(ctx, &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
	})
	require.NoError(t, err)
	queued, err := v.engine.Reserve(ctx, &entity.ReserveRequest{
		UserId:  "u2",
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, queued.Waitlisted)

	tok := v.token(t, "u2", false)
	errResp := ErrResponse{}
	code := v.do(t, http.MethodPost, "/api/waitlist/"+queued.WaitlistId+"/claim", tok, nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "FailedPrecondition", errResp.Code)

	// u1's hold lapses and the freed ticket is offered to u2
	v.clock.Advance(ttl + time.Second)
	v.runDue(t)

	var entries []entity.WaitlistEntry
	code = v.do(t, http.MethodGet, "/api/waitlist", tok, nil, &entries)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.WaitlistNotified, entries[0].Status)

	code = v.do(t, http.MethodGet, "/api/waitlist/"+queued.WaitlistId, v.token(t, "u1", false), nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	claim := ClaimResponse{}
	code = v.do(t, http.MethodPost, "/api/waitlist/"+queued.WaitlistId+"/claim", tok, nil, &claim)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, claim.Success)
	assert.NotEmpty(t, claim.ReservationId)
	assert.True(t, claim.ExpiresAt.Equal(v.clock.Now().Add(ttl)))

	entry := entity.WaitlistEntry{}
	code = v.do(t, http.MethodGet, "/api/waitlist/"+queued.WaitlistId, tok, nil, &entry)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, entity.WaitlistClaimed, entry.Status)
}

func TestRunTask(t *testing.T) {
	v := newEnv(t, 5, nil)
	payload := entity.ReserveRequest{
		RequestId: "req-1",
		UserId:    "u1",
		EventId:   "e1",
		Tickets:   []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
	}

	send := func(name, secret string, body any) int {
		bs, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, v.srv.URL+"/api/tasks/"+name, bytes.NewReader(bs))
		require.NoError(t, err)
		if secret != "" {
			req.Header.Set(taskSecretHeader, secret)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusForbidden, send(reservation.TaskProcessReservation, "", payload))
	assert.Equal(t, http.StatusForbidden, send(reservation.TaskProcessReservation, "wrong", payload))
	assert.Equal(t, http.StatusNotFound, send("no-such-task", taskSecret, payload))
	assert.Equal(t, http.StatusBadRequest, send(reservation.TaskReservationExpiry, taskSecret, map[string]string{}))

	require.Equal(t, http.StatusOK, send(reservation.TaskProcessReservation, taskSecret, payload))
	// redelivery is idempotent
	require.Equal(t, http.StatusOK, send(reservation.TaskProcessReservation, taskSecret, payload))

	rs, err := v.store.Reservations().ListReservationsByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rs, 1)

	// the deadline has not passed yet so the external scheduler must retry
	code := send(reservation.TaskReservationExpiry, taskSecret, reservation.ReservationExpiryPayload{ReservationId: rs[0].Id})
	assert.Equal(t, http.StatusBadRequest, code)

	v.clock.Advance(ttl)
	code = send(reservation.TaskReservationExpiry, taskSecret, reservation.ReservationExpiryPayload{ReservationId: rs[0].Id})
	assert.Equal(t, http.StatusOK, code)
}

func TestAdmin(t *testing.T) {
	v := newEnv(t, 5, nil)
	admin := v.token(t, "root", true)

	user := map[string]any{"id": "u9", "email": "fan@example.com", "display_name": "Alex"}
	code := v.do(t, http.MethodPost, "/api/admin/users", v.token(t, "u1", false), user, nil)
	assert.Equal(t, http.StatusForbidden, code)

	created := CreatedResponse{}
	code = v.do(t, http.MethodPost, "/api/admin/users", admin, user, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "u9", created.Id)

	u, err := v.store.Users().GetUserById(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, "fan@example.com", u.Email)
	assert.True(t, u.CreatedAt.Equal(t0))

	code = v.do(t, http.MethodPost, "/api/admin/users", admin, user, nil)
	assert.Equal(t, http.StatusConflict, code)

	errResp := ErrResponse{}
	code = v.do(t, http.MethodPost, "/api/admin/users", admin, map[string]any{"id": "u10", "email": "nope"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, errResp.Details, 1)
	assert.Equal(t, "email", errResp.Details[0].Field)

	event := map[string]any{
		"event": map[string]any{
			"id":          "e2",
			"name":        "Matinee",
			"location_id": "small-hall",
			"start_time":  t0.Add(24 * time.Hour),
			"end_time":    t0.Add(26 * time.Hour),
		},
		"ticket_types": []map[string]any{{
			"id":             "std",
			"name":           "Standard",
			"price":          "15.50",
			"currency":       "EUR",
			"total_quantity": 3,
		}},
	}
	code = v.do(t, http.MethodPost, "/api/admin/events", admin, event, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "e2", created.Id)

	code = v.do(t, http.MethodPost, "/api/admin/events", admin, event, nil)
	assert.Equal(t, http.StatusConflict, code)

	var invs []entity.Inventory
	code = v.do(t, http.MethodGet, "/api/events/e2/inventory", admin, nil, &invs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, invs, 1)
	assert.Equal(t, "std", invs[0].TicketTypeId)
	assert.Equal(t, 3, invs[0].AvailableQuantity)
}
