package gerr

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	EventNotFound       = status.Error(codes.NotFound, "event not found")
	TicketTypeNotFound  = status.Error(codes.NotFound, "ticket type not found")
	ReservationNotFound = status.Error(codes.NotFound, "reservation not found")
	WaitlistNotFound    = status.Error(codes.NotFound, "waitlist entry not found")
	UserNotFound        = status.Error(codes.NotFound, "user not found")

	NotReservationOwner = status.Error(codes.PermissionDenied, "reservation belongs to another user")
	NotWaitlistOwner    = status.Error(codes.PermissionDenied, "waitlist entry belongs to another user")
	AdminOnly           = status.Error(codes.PermissionDenied, "admin role required")

	ReservationExpired = status.Error(codes.FailedPrecondition, "reservation expired")
	ClaimWindowExpired = status.Error(codes.FailedPrecondition, "waitlist claim window expired")
	NotYetDue          = status.Error(codes.FailedPrecondition, "deadline not reached yet")

	Unauthenticated   = status.Error(codes.Unauthenticated, "missing or invalid token")
	RateLimited       = status.Error(codes.ResourceExhausted, "too many reservation requests, please slow down")
	TxRetriesExceeded = status.Error(codes.Aborted, "transaction aborted after repeated conflicts")
	BadTaskSecret     = status.Error(codes.PermissionDenied, "bad task secret")
	UnknownTask       = status.Error(codes.NotFound, "unknown task")
)

// InvalidArgument returns a status error for a malformed request.
func InvalidArgument(format string, args ...any) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf(format, args...))
}

// WrongStatus reports that a record is not in the status an operation needs.
func WrongStatus(kind string, current any) error {
	return status.Errorf(codes.FailedPrecondition, "%s is %v", kind, current)
}

// Internal wraps an unexpected failure.
func Internal(err error) error {
	return status.Error(codes.Internal, err.Error())
}

// AlreadyExists reports a collaborator record provisioned twice.
func AlreadyExists(kind, id string) error {
	return status.Errorf(codes.AlreadyExists, "%s %s already exists", kind, id)
}
