// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeReserved   = "reserved"
	OutcomeWaitlisted = "waitlisted"
	OutcomeDuplicate  = "duplicate"

	KindReservation = "reservation"
	KindClaimWindow = "claim_window"

	ResultOk    = "ok"
	ResultRetry = "retry"
	ResultFail  = "failed"
)

var (
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_reservations_total",
		Help: "Processed reservation attempts by outcome",
	}, []string{"outcome"})

	Purchases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_purchases_total",
		Help: "Completed purchases",
	})

	Sold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_sold_total",
		Help: "Tickets issued by completed purchases",
	})

	Expirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_expirations_total",
		Help: "Expired reservations and claim windows",
	}, []string{"kind"})

	WaitlistNotified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_waitlist_notified_total",
		Help: "Waitlist entries offered freed capacity",
	})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_notification_failures_total",
		Help: "Notifications the sinks failed to deliver",
	})

	Tasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_tasks_total",
		Help: "Scheduled task deliveries by task name and result",
	}, []string{"name", "result"})

	TxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickets_tx_retries_total",
		Help: "Transactions retried after a lock conflict",
	})

	// Available mirrors the available counter of each inventory record after a committed change.
	Available = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickets_available",
		Help: "Available tickets per event and ticket type",
	}, []string{"event_id", "ticket_type_id"})
)
