package dependency

import (
	"context"
	"database/sql"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/entity"
	"github.com/jmoiron/sqlx"
)

//go:generate mockery --with-expecter --case underscore --all --output=./mocks
type (
	ContextStore interface {
		Tx(ctx context.Context, fn func(ctx context.Context, store Repository) error) error
	}

	Events interface {
		// AddEvent stores an event together with its ticket types.
		AddEvent(ctx context.Context, ef *entity.EventFull) error
		// GetEventById returns an event with its ticket types.
		GetEventById(ctx context.Context, id string) (*entity.EventFull, error)
	}

	Inventory interface {
		GetInventory(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error)
		// GetInventoryForUpdate reads the record and locks it until the transaction ends.
		GetInventoryForUpdate(ctx context.Context, eventId, ticketTypeId string) (*entity.Inventory, error)
		AddInventory(ctx context.Context, inv *entity.Inventory) error
		UpdateInventory(ctx context.Context, inv *entity.Inventory) error
		ListInventoryByEvent(ctx context.Context, eventId string) ([]entity.Inventory, error)
	}

	Reservations interface {
		AddReservation(ctx context.Context, r *entity.Reservation) error
		GetReservationById(ctx context.Context, id string) (*entity.Reservation, error)
		GetReservationByRequestId(ctx context.Context, requestId string) (*entity.Reservation, error)
		UpdateReservationStatus(ctx context.Context, id string, st entity.ReservationStatus, at time.Time) error
		// SetReservationNotificationError records a failed notification delivery.
		SetReservationNotificationError(ctx context.Context, id string, msg string) error
		ListReservationsByUser(ctx context.Context, userId string) ([]entity.Reservation, error)
		// ListOverdueReservations returns pending reservations whose deadline is before now.
		ListOverdueReservations(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error)
	}

	Waitlist interface {
		AddWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error
		GetWaitlistEntryById(ctx context.Context, id string) (*entity.WaitlistEntry, error)
		GetWaitlistEntryByRequestId(ctx context.Context, requestId string) (*entity.WaitlistEntry, error)
		// ListWaitingEntries returns waiting entries of a partition in FIFO order.
		ListWaitingEntries(ctx context.Context, eventId, ticketTypeId string, limit int) ([]entity.WaitlistEntry, error)
		UpdateWaitlistEntry(ctx context.Context, w *entity.WaitlistEntry) error
		// SetWaitlistNotification records the outcome of a spot-available notification.
		SetWaitlistNotification(ctx context.Context, id string, at time.Time, errMsg string) error
		// SetWaitlistNotificationError records a failed delivery of any other kind.
		SetWaitlistNotificationError(ctx context.Context, id string, msg string) error
		ListWaitlistByUser(ctx context.Context, userId string) ([]entity.WaitlistEntry, error)
		// ListLapsedWaitlistEntries returns notified entries whose claim window closed before now.
		ListLapsedWaitlistEntries(ctx context.Context, now time.Time, limit int) ([]entity.WaitlistEntry, error)
	}

	Tickets interface {
		AddTickets(ctx context.Context, tickets []entity.Ticket) error
		ListTicketsByReservation(ctx context.Context, reservationId string) ([]entity.Ticket, error)
	}

	Tasks interface {
		AddTask(ctx context.Context, t *entity.TaskInsert) (string, error)
		GetTaskById(ctx context.Context, id string) (*entity.Task, error)
		// AcquireDueTasks leases up to limit pending tasks whose run_at is not after now.
		AcquireDueTasks(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entity.Task, error)
		CompleteTask(ctx context.Context, id string, at time.Time) error
		// FailTask records an attempt error and either reschedules the task at retryAt or marks it failed.
		FailTask(ctx context.Context, id string, errMsg string, retryAt time.Time, final bool) error
	}

	Users interface {
		AddUser(ctx context.Context, u *entity.User) error
		GetUserById(ctx context.Context, id string) (*entity.User, error)
	}

	Repository interface {
		Events() Events
		Inventory() Inventory
		Reservations() Reservations
		Waitlist() Waitlist
		Tickets() Tickets
		Tasks() Tasks
		Users() Users
		Tx(ctx context.Context, f func(context.Context, Repository) error) error
		TxBegin(ctx context.Context) (Repository, error)
		TxCommit(ctx context.Context) error
		TxRollback(ctx context.Context) error
		InTx() bool
		Close()
		IsErrUniqueViolation(err error) bool
		IsErrorRepeat(err error) bool
	}

	// DB represents database interface.
	DB interface {
		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

		// sqlx methods
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
		QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
		QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	}

	// TaskHandler executes one delivery of a scheduled task.
	TaskHandler func(ctx context.Context, payload []byte) error

	Scheduler interface {
		// Schedule runs the named task with payload at or after runAt. rep is the
		// caller's repository; inside a transaction the task commits with it.
		Schedule(ctx context.Context, rep Repository, name string, payload any, runAt time.Time) error
		Handle(name string, h TaskHandler)
		Dispatch(ctx context.Context, name string, payload []byte) error
		Start(ctx context.Context) error
		Stop() error
	}

	Notifier interface {
		Notify(ctx context.Context, n *entity.Notification) error
	}

	Engine interface {
		Reserve(ctx context.Context, req *entity.ReserveRequest) (*entity.ReserveResult, error)
		CompletePurchase(ctx context.Context, userId, reservationId string) (*entity.PurchaseResult, error)
		ExpireReservation(ctx context.Context, reservationId string) error
		ExpireWaitlistNotification(ctx context.Context, waitlistId string) error
		ClaimWaitlisted(ctx context.Context, userId, waitlistId string) (*entity.ClaimResult, error)
		GetReservation(ctx context.Context, userId, reservationId string) (*entity.Reservation, error)
		ListReservations(ctx context.Context, userId string) ([]entity.Reservation, error)
		GetWaitlistEntry(ctx context.Context, userId, waitlistId string) (*entity.WaitlistEntry, error)
		ListWaitlist(ctx context.Context, userId string) ([]entity.WaitlistEntry, error)
		ListInventory(ctx context.Context, eventId string) ([]entity.Inventory, error)
	}
)
