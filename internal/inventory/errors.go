package inventory

import (
	"errors"
	"net/http"

	"github.com/fekuna/omnipos-inventory-service/internal/resilience"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"google.golang.org/grpc/codes"
)

var (
	ErrNotFound           = errors.New("inventory not found")
	ErrAlreadyExists      = errors.New("inventory already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidAction      = errors.New("invalid inventory action")
	ErrInvariantViolation = errors.New("inventory invariant violated")
	ErrLockUnavailable    = errors.New("system busy, please try again later (lock)")
	ErrTimedOut           = resilience.ErrTimedOut
)

// HTTPStatus maps an apply outcome onto the status code scheme of the
// enclosing service.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidAction),
		errors.Is(err, variant.ErrInvalidSelection):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrTimedOut):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidAction),
		errors.Is(err, variant.ErrInvalidSelection):
		return codes.InvalidArgument
	case errors.Is(err, ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, ErrTimedOut):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// IsDomainError reports whether err is an expected, terminal outcome that
// must never be retried.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidAction)
}
