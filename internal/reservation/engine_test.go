package reservation

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/clock"
	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	gerr "github.com/jekabolt/grbpwr-tickets/internal/errors"
	"github.com/jekabolt/grbpwr-tickets/internal/scheduler"
	"github.com/jekabolt/grbpwr-tickets/internal/store/bunt"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

const (
	ttl         = 10 * time.Minute
	claimWindow = 30 * time.Minute
)

type recorder struct {
	mu    sync.Mutex
	notes []entity.Notification
	fail  func(n *entity.Notification) error
}

func (r *recorder) Notify(ctx context.Context, n *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, *n)
	if r.fail != nil {
		return r.fail(n)
	}
	return nil
}

func (r *recorder) kinds(userId string) []entity.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.NotificationKind
	for _, n := range r.notes {
		if n.UserId == userId {
			out = append(out, n.Kind)
		}
	}
	return out
}

type env struct {
	e     *Engine
	s     *bunt.Store
	sch   *scheduler.Scheduler
	clock *clock.Mock
	n     *recorder
}

// newEnv creates an engine over an in-memory store with event e1 offering
// ga (capacity ga) and vip (capacity 1).
func newEnv(t *testing.T, ga int) *env {
	s, err := bunt.New(bunt.Config{})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	clk := clock.NewMock(t0)
	sch := scheduler.New(&scheduler.Config{RetryBackoff: time.Second}, s, clk)
	n := &recorder{}
	e := New(&Config{ReservationTTL: ttl, ClaimWindow: claimWindow}, s, sch, n, clk)
	e.RegisterTasks(sch)

	err = s.Events().AddEvent(context.Background(), &entity.EventFull{
		Event: entity.Event{
			Id:         "e1",
			Name:       "Closing night",
			LocationId: "main-hall",
			StartTime:  t0.Add(48 * time.Hour),
			EndTime:    t0.Add(52 * time.Hour),
			CreatedAt:  t0,
		},
		TicketTypes: []entity.TicketType{
			{
				Id:            "ga",
				EventId:       "e1",
				Name:          "General admission",
				Price:         decimal.RequireFromString("40.00"),
				Currency:      "EUR",
				TotalQuantity: ga,
			},
			{
				Id:            "vip",
				EventId:       "e1",
				Name:          "VIP",
				Price:         decimal.RequireFromString("120.00"),
				Currency:      "EUR",
				TotalQuantity: 1,
				ValidFrom:     sql.NullTime{Time: t0.Add(47 * time.Hour), Valid: true},
				EntranceId:    sql.NullString{String: "vip-door", Valid: true},
			},
		},
	})
	require.NoError(t, err)
	return &env{e: e, s: s, sch: sch, clock: clk, n: n}
}

func (v *env) reserve(t *testing.T, userId, ticketTypeId string, q int) *entity.ReserveResult {
	t.Helper()
	res, err := v.e.Reserve(context.Background(), &entity.ReserveRequest{
		UserId:  userId,
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: ticketTypeId, Quantity: q}},
	})
	require.NoError(t, err)
	return res
}

func (v *env) inventory(t *testing.T, ticketTypeId string) *entity.Inventory {
	t.Helper()
	inv, err := v.s.Inventory().GetInventory(context.Background(), "e1", ticketTypeId)
	require.NoError(t, err)
	require.NoError(t, inv.Check())
	return inv
}

func (v *env) entry(t *testing.T, id string) *entity.WaitlistEntry {
	t.Helper()
	w, err := v.s.Waitlist().GetWaitlistEntryById(context.Background(), id)
	require.NoError(t, err)
	return w
}

func (v *env) runDue(t *testing.T) int {
	t.Helper()
	n, err := v.sch.RunDue(context.Background())
	require.NoError(t, err)
	return n
}

func assertCounters(t *testing.T, inv *entity.Inventory, available, reserved, sold, earmarked int) {
	t.Helper()
	assert.Equal(t, available, inv.AvailableQuantity, "available")
	assert.Equal(t, reserved, inv.ReservedQuantity, "reserved")
	assert.Equal(t, sold, inv.SoldQuantity, "sold")
	assert.Equal(t, earmarked, inv.EarmarkedQuantity, "earmarked")
}

func TestReserveAndPurchase(t *testing.T) {
	v := newEnv(t, 5)
	ctx := context.Background()

	res := v.reserve(t, "u1", "ga", 2)
	require.True(t, res.Success)
	assert.False(t, res.Waitlisted)
	assert.Equal(t, t0.Add(ttl), res.ExpiresAt)
	assertCounters(t, v.inventory(t, "ga"), 3, 2, 0, 0)

	pr, err := v.e.CompletePurchase(ctx, "u1", res.ReservationId)
	require.NoError(t, err)
	assert.Len(t, pr.TicketIds, 2)
	assertCounters(t, v.inventory(t, "ga"), 3, 0, 2, 0)

	r, err := v.e.GetReservation(ctx, "u1", res.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationCompleted, r.Status)

	tickets, err := v.s.Tickets().ListTicketsByReservation(ctx, res.ReservationId)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, "u1", tk.UserId)
		assert.True(t, decimal.RequireFromString("40").Equal(tk.Price))
		assert.Equal(t, "main-hall", tk.EntranceLocationId)
		assert.Equal(t, t0.Add(48*time.Hour), tk.ValidFrom.UTC())
		assert.Equal(t, entity.TicketValid, tk.Status)
	}

	_, err = v.e.CompletePurchase(ctx, "u1", res.ReservationId)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	// the expiry task of a completed reservation is a no-op
	v.clock.Advance(ttl)
	assert.Equal(t, 1, v.runDue(t))
	assertCounters(t, v.inventory(t, "ga"), 3, 0, 2, 0)

	assert.Equal(t, []entity.NotificationKind{
		entity.NotificationReservationCreated,
		entity.NotificationPurchaseCompleted,
	}, v.n.kinds("u1"))
}

func TestTicketSnapshotUsesTypeOverrides(t *testing.T) {
	v := newEnv(t, 5)
	ctx := context.Background()

	res := v.reserve(t, "u1", "vip", 1)
	pr, err := v.e.CompletePurchase(ctx, "u1", res.ReservationId)
	require.NoError(t, err)
	require.Len(t, pr.TicketIds, 1)

	tickets, err := v.s.Tickets().ListTicketsByReservation(ctx, res.ReservationId)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "vip-door", tickets[0].EntranceLocationId)
	assert.Equal(t, t0.Add(47*time.Hour), tickets[0].ValidFrom.UTC())
	assert.Equal(t, t0.Add(52*time.Hour), tickets[0].ValidUntil.UTC())
	assert.Equal(t, "VIP", tickets[0].TicketTypeName)
}

func TestSoldOutGoesToWaitlist(t *testing.T) {
	v := newEnv(t, 2)

	v.reserve(t, "u1", "ga", 2)
	res := v.reserve(t, "u2", "ga", 1)
	assert.False(t, res.Success)
	require.True(t, res.Waitlisted)
	assertCounters(t, v.inventory(t, "ga"), 0, 2, 0, 0)

	w := v.entry(t, res.WaitlistId)
	assert.Equal(t, entity.WaitlistWaiting, w.Status)
	assert.Equal(t, 1, w.Quantity)
	assert.Equal(t, []entity.NotificationKind{entity.NotificationWaitlisted}, v.n.kinds("u2"))
}

func TestExpiryNotifiesWaitlistAndClaim(t *testing.T) {
	v := newEnv(t, 2)
	ctx := context.Background()

	held := v.reserve(t, "u1", "ga", 2)
	waiting := v.reserve(t, "u2", "ga", 1)
	require.True(t, waiting.Waitlisted)

	v.clock.Advance(ttl)
	assert.Equal(t, 1, v.runDue(t))

	r, err := v.s.Reservations().GetReservationById(ctx, held.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationExpired, r.Status)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 0, 1)

	w := v.entry(t, waiting.WaitlistId)
	assert.Equal(t, entity.WaitlistNotified, w.Status)
	assert.True(t, w.NotificationSent)
	assert.True(t, w.NotificationTime.Valid)
	assert.Equal(t, v.clock.Now().Add(claimWindow), w.ExpirationTime.Time.UTC())
	assert.Contains(t, v.n.kinds("u1"), entity.NotificationReservationExpired)
	assert.Contains(t, v.n.kinds("u2"), entity.NotificationWaitlistSpotAvailable)

	_, err = v.e.ClaimWaitlisted(ctx, "u1", waiting.WaitlistId)
	assert.ErrorIs(t, err, gerr.NotWaitlistOwner)

	v.clock.Advance(time.Minute)
	cr, err := v.e.ClaimWaitlisted(ctx, "u2", waiting.WaitlistId)
	require.NoError(t, err)
	assert.Equal(t, v.clock.Now().Add(ttl), cr.ExpiresAt)
	assertCounters(t, v.inventory(t, "ga"), 1, 1, 0, 0)
	assert.Equal(t, entity.WaitlistClaimed, v.entry(t, waiting.WaitlistId).Status)

	_, err = v.e.CompletePurchase(ctx, "u2", cr.ReservationId)
	require.NoError(t, err)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 1, 0)

	// the claim-window task finds the entry claimed and does nothing
	v.clock.Advance(claimWindow)
	v.runDue(t)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 1, 0)
}

func TestClaimWindowLapsePassesEarmarkOn(t *testing.T) {
	v := newEnv(t, 1)
	ctx := context.Background()

	v.reserve(t, "u1", "ga", 1)
	first := v.reserve(t, "u2", "ga", 1)
	second := v.reserve(t, "u3", "ga", 1)

	v.clock.Advance(ttl)
	v.runDue(t)
	assert.Equal(t, entity.WaitlistNotified, v.entry(t, first.WaitlistId).Status)
	assert.Equal(t, entity.WaitlistWaiting, v.entry(t, second.WaitlistId).Status)
	assertCounters(t, v.inventory(t, "ga"), 0, 0, 0, 1)

	v.clock.Advance(claimWindow)
	assert.Equal(t, 1, v.runDue(t))
	assert.Equal(t, entity.WaitlistExpired, v.entry(t, first.WaitlistId).Status)
	assert.Equal(t, entity.WaitlistNotified, v.entry(t, second.WaitlistId).Status)
	assertCounters(t, v.inventory(t, "ga"), 0, 0, 0, 1)
	assert.Contains(t, v.n.kinds("u2"), entity.NotificationWaitlistClaimExpired)

	_, err := v.e.ClaimWaitlisted(ctx, "u2", first.WaitlistId)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestClaimAfterWindowIsRejected(t *testing.T) {
	v := newEnv(t, 1)
	ctx := context.Background()

	v.reserve(t, "u1", "ga", 1)
	waiting := v.reserve(t, "u2", "ga", 1)
	v.clock.Advance(ttl)
	v.runDue(t)

	v.clock.Advance(claimWindow + time.Second)
	_, err := v.e.ClaimWaitlisted(ctx, "u2", waiting.WaitlistId)
	assert.ErrorIs(t, err, gerr.ClaimWindowExpired)

	// the lapse is committed even though the call failed
	assert.Equal(t, entity.WaitlistExpired, v.entry(t, waiting.WaitlistId).Status)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 0, 0)
}

func TestPurchaseAfterDeadline(t *testing.T) {
	v := newEnv(t, 2)
	ctx := context.Background()

	res := v.reserve(t, "u1", "ga", 2)
	v.clock.Advance(ttl + time.Second)

	_, err := v.e.CompletePurchase(ctx, "u1", res.ReservationId)
	assert.ErrorIs(t, err, gerr.ReservationExpired)

	r, err := v.s.Reservations().GetReservationById(ctx, res.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationExpired, r.Status)
	assertCounters(t, v.inventory(t, "ga"), 2, 0, 0, 0)

	// the scheduled expiry is now a no-op
	v.runDue(t)
	assertCounters(t, v.inventory(t, "ga"), 2, 0, 0, 0)
}

func TestPurchaseAtDeadlineSucceeds(t *testing.T) {
	v := newEnv(t, 2)

	res := v.reserve(t, "u1", "ga", 1)
	v.clock.Advance(ttl)
	_, err := v.e.CompletePurchase(context.Background(), "u1", res.ReservationId)
	require.NoError(t, err)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 1, 0)
}

func TestPurchaseChecks(t *testing.T) {
	v := newEnv(t, 2)
	ctx := context.Background()

	res := v.reserve(t, "u1", "ga", 1)

	_, err := v.e.CompletePurchase(ctx, "u2", res.ReservationId)
	assert.ErrorIs(t, err, gerr.NotReservationOwner)
	_, err = v.e.CompletePurchase(ctx, "u1", "missing")
	assert.ErrorIs(t, err, gerr.ReservationNotFound)
	_, err = v.e.CompletePurchase(ctx, "u1", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assertCounters(t, v.inventory(t, "ga"), 1, 1, 0, 0)
}

func TestExpireReservationBeforeDeadline(t *testing.T) {
	v := newEnv(t, 2)
	ctx := context.Background()

	res := v.reserve(t, "u1", "ga", 1)
	err := v.e.ExpireReservation(ctx, res.ReservationId)
	assert.ErrorIs(t, err, gerr.NotYetDue)
	assertCounters(t, v.inventory(t, "ga"), 1, 1, 0, 0)

	v.clock.Advance(ttl)
	require.NoError(t, v.e.ExpireReservation(ctx, res.ReservationId))
	require.NoError(t, v.e.ExpireReservation(ctx, res.ReservationId))
	require.NoError(t, v.e.ExpireReservation(ctx, "missing"))
	assertCounters(t, v.inventory(t, "ga"), 2, 0, 0, 0)
	assert.Equal(t, 1, countKind(v.n.kinds("u1"), entity.NotificationReservationExpired))
}

func TestExpireWaitlistNotificationIsIdempotent(t *testing.T) {
	v := newEnv(t, 1)
	ctx := context.Background()

	v.reserve(t, "u1", "ga", 1)
	waiting := v.reserve(t, "u2", "ga", 1)

	// waiting entries are not touched
	require.NoError(t, v.e.ExpireWaitlistNotification(ctx, waiting.WaitlistId))
	assert.Equal(t, entity.WaitlistWaiting, v.entry(t, waiting.WaitlistId).Status)

	v.clock.Advance(ttl)
	v.runDue(t)
	assert.ErrorIs(t, v.e.ExpireWaitlistNotification(ctx, waiting.WaitlistId), gerr.NotYetDue)

	v.clock.Advance(claimWindow)
	require.NoError(t, v.e.ExpireWaitlistNotification(ctx, waiting.WaitlistId))
	require.NoError(t, v.e.ExpireWaitlistNotification(ctx, waiting.WaitlistId))
	require.NoError(t, v.e.ExpireWaitlistNotification(ctx, "missing"))
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 0, 0)
}

func TestWaitlistIsFIFOWithoutOvertaking(t *testing.T) {
	v := newEnv(t, 3)

	a := v.reserve(t, "u1", "ga", 1)
	v.reserve(t, "u2", "ga", 2)
	big := v.reserve(t, "u3", "ga", 2)
	small := v.reserve(t, "u4", "ga", 1)
	require.True(t, big.Waitlisted)
	require.True(t, small.Waitlisted)

	// one unit frees up: the head needs two, so nobody is served
	v.clock.Advance(ttl)
	require.NoError(t, v.e.ExpireReservation(context.Background(), a.ReservationId))
	assert.Equal(t, entity.WaitlistWaiting, v.entry(t, big.WaitlistId).Status)
	assert.Equal(t, entity.WaitlistWaiting, v.entry(t, small.WaitlistId).Status)
	assertCounters(t, v.inventory(t, "ga"), 1, 2, 0, 0)

	// two more units free up and the head takes exactly those; the unit
	// freed earlier stays available
	v.runDue(t)
	assert.Equal(t, entity.WaitlistNotified, v.entry(t, big.WaitlistId).Status)
	assert.Equal(t, entity.WaitlistWaiting, v.entry(t, small.WaitlistId).Status)
	assertCounters(t, v.inventory(t, "ga"), 1, 0, 0, 2)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	v := newEnv(t, 5)

	res, err := v.e.Reserve(context.Background(), &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{
			{TicketTypeId: "ga", Quantity: 2},
			{TicketTypeId: "vip", Quantity: 2},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Waitlisted)
	assertCounters(t, v.inventory(t, "ga"), 5, 0, 0, 0)

	w := v.entry(t, res.WaitlistId)
	assert.Equal(t, "vip", w.TicketTypeId)
	assert.Equal(t, 2, w.Quantity)

	res, err = v.e.Reserve(context.Background(), &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{
			{TicketTypeId: "ga", Quantity: 2},
			{TicketTypeId: "vip", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assertCounters(t, v.inventory(t, "ga"), 3, 2, 0, 0)
	assertCounters(t, v.inventory(t, "vip"), 0, 1, 0, 0)

	r, err := v.e.GetReservation(context.Background(), "u1", res.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Quantity())
}

func TestReserveIsIdempotentPerRequest(t *testing.T) {
	v := newEnv(t, 5)
	req := func() *entity.ReserveRequest {
		return &entity.ReserveRequest{
			RequestId: "req-1",
			UserId:    "u1",
			EventId:   "e1",
			Tickets:   []entity.TicketLine{{TicketTypeId: "ga", Quantity: 2}},
		}
	}

	first, err := v.e.Reserve(context.Background(), req())
	require.NoError(t, err)
	second, err := v.e.Reserve(context.Background(), req())
	require.NoError(t, err)
	assert.Equal(t, first.ReservationId, second.ReservationId)
	assertCounters(t, v.inventory(t, "ga"), 3, 2, 0, 0)
}

func TestReserveRejectsBadRequests(t *testing.T) {
	v := newEnv(t, 5)
	ctx := context.Background()

	_, err := v.e.Reserve(ctx, &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 0}},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = v.e.Reserve(ctx, &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "nope",
		Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
	})
	assert.ErrorIs(t, err, gerr.EventNotFound)

	_, err = v.e.Reserve(ctx, &entity.ReserveRequest{
		UserId:  "u1",
		EventId: "e1",
		Tickets: []entity.TicketLine{{TicketTypeId: "balcony", Quantity: 1}},
	})
	assert.ErrorIs(t, err, gerr.TicketTypeNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	v := newEnv(t, 5)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		reserved   int
		waitlisted int
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := v.e.Reserve(context.Background(), &entity.ReserveRequest{
				UserId:  "u" + string(rune('a'+i)),
				EventId: "e1",
				Tickets: []entity.TicketLine{{TicketTypeId: "ga", Quantity: 1}},
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Success {
				reserved++
			} else if res.Waitlisted {
				waitlisted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, reserved)
	assert.Equal(t, 15, waitlisted)
	assertCounters(t, v.inventory(t, "ga"), 0, 5, 0, 0)
}

func TestNotificationFailureIsRecorded(t *testing.T) {
	v := newEnv(t, 1)
	ctx := context.Background()
	v.n.fail = func(n *entity.Notification) error {
		return errors.New("smtp down")
	}

	held := v.reserve(t, "u1", "ga", 1)
	require.True(t, held.Success)
	r, err := v.s.Reservations().GetReservationById(ctx, held.ReservationId)
	require.NoError(t, err)
	assert.Equal(t, "smtp down", r.NotificationError.String)
	assert.Equal(t, entity.ReservationPending, r.Status)

	waiting := v.reserve(t, "u2", "ga", 1)
	v.clock.Advance(ttl)
	v.runDue(t)

	w := v.entry(t, waiting.WaitlistId)
	assert.Equal(t, entity.WaitlistNotified, w.Status)
	assert.False(t, w.NotificationSent)
	assert.Equal(t, "smtp down", w.NotificationError.String)
	assertCounters(t, v.inventory(t, "ga"), 0, 0, 0, 1)
}

func TestWaitlistNotificationFailureIsRecorded(t *testing.T) {
	v := newEnv(t, 1)
	failKind := entity.NotificationWaitlisted
	v.n.fail = func(n *entity.Notification) error {
		if n.Kind == failKind {
			return errors.New("smtp down")
		}
		return nil
	}

	v.reserve(t, "u1", "ga", 1)
	waiting := v.reserve(t, "u2", "ga", 1)
	require.False(t, waiting.Success)

	w := v.entry(t, waiting.WaitlistId)
	assert.Equal(t, entity.WaitlistWaiting, w.Status)
	assert.False(t, w.NotificationSent)
	assert.True(t, w.NotificationError.Valid)
	assert.Equal(t, "smtp down", w.NotificationError.String)

	failKind = entity.NotificationWaitlistClaimExpired
	v.clock.Advance(ttl)
	v.runDue(t)
	w = v.entry(t, waiting.WaitlistId)
	assert.Equal(t, entity.WaitlistNotified, w.Status)
	assert.True(t, w.NotificationSent)
	assert.False(t, w.NotificationError.Valid)

	v.clock.Advance(claimWindow)
	v.runDue(t)
	w = v.entry(t, waiting.WaitlistId)
	assert.Equal(t, entity.WaitlistExpired, w.Status)
	assert.True(t, w.NotificationSent)
	assert.Equal(t, "smtp down", w.NotificationError.String)
}

func TestProcessReservationTask(t *testing.T) {
	v := newEnv(t, 5)
	ctx := context.Background()

	payload := []byte(`{"requestId":"r-42","userId":"u1","eventId":"e1","tickets":[{"ticketTypeId":"ga","quantity":3}]}`)
	require.NoError(t, v.sch.Dispatch(ctx, TaskProcessReservation, payload))
	require.NoError(t, v.sch.Dispatch(ctx, TaskProcessReservation, payload))
	assertCounters(t, v.inventory(t, "ga"), 2, 3, 0, 0)

	r, err := v.s.Reservations().GetReservationByRequestId(ctx, "r-42")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Quantity())

	err = v.sch.Dispatch(ctx, TaskProcessReservation, []byte(`{`))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	err = v.sch.Dispatch(ctx, TaskReservationExpiry, []byte(`{}`))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestQueries(t *testing.T) {
	v := newEnv(t, 1)
	ctx := context.Background()

	held := v.reserve(t, "u1", "ga", 1)
	waiting := v.reserve(t, "u2", "ga", 1)

	rs, err := v.e.ListReservations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, held.ReservationId, rs[0].Id)

	_, err = v.e.GetReservation(ctx, "u2", held.ReservationId)
	assert.ErrorIs(t, err, gerr.NotReservationOwner)

	ws, err := v.e.ListWaitlist(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, ws, 1)
	_, err = v.e.GetWaitlistEntry(ctx, "u1", waiting.WaitlistId)
	assert.ErrorIs(t, err, gerr.NotWaitlistOwner)
	_, err = v.e.GetWaitlistEntry(ctx, "u2", "missing")
	assert.ErrorIs(t, err, gerr.WaitlistNotFound)

	invs, err := v.e.ListInventory(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	byType := map[string]entity.Inventory{}
	for _, inv := range invs {
		byType[inv.TicketTypeId] = inv
	}
	assertCounters(t, ptr(byType["ga"]), 0, 1, 0, 0)
	assertCounters(t, ptr(byType["vip"]), 1, 0, 0, 0)

	_, err = v.e.ListInventory(ctx, "nope")
	assert.ErrorIs(t, err, gerr.EventNotFound)
}

func countKind(kinds []entity.NotificationKind, k entity.NotificationKind) int {
	n := 0
	for _, got := range kinds {
		if got == k {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }
