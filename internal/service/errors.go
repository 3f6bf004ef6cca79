package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/coffeeshop/shop/internal/domain"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is returned by every service operation. The code selects the
// transport status and the message is safe to show to clients.
type Error struct {
	code codes.Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil && e.err.Error() != e.msg {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Code() codes.Code { return e.code }

func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.code, e.msg)
}

func newError(code codes.Code, msg string, err error) *Error {
	return &Error{code: code, msg: msg, err: err}
}

func invalidArgument(msg string) *Error {
	return newError(codes.InvalidArgument, msg, nil)
}

func unauthenticated(msg string) *Error {
	return newError(codes.Unauthenticated, msg, nil)
}

// translate turns repository and domain errors into an *Error. op names the
// failed step for internal errors.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}

	switch {
	case errors.Is(err, domain.ErrCartNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return newError(codes.NotFound, notFoundMessage(err), err)
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrQuantityTooLarge):
		return newError(codes.InvalidArgument, err.Error(), err)
	case errors.Is(err, domain.ErrEmailTaken):
		return newError(codes.AlreadyExists, domain.ErrEmailTaken.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(codes.DeadlineExceeded, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return newError(codes.Canceled, "request cancelled", err)
	}
	return newError(codes.Internal, "failed to "+op, err)
}

func notFoundMessage(err error) string {
	for _, target := range []error{domain.ErrCartNotFound, domain.ErrItemNotFound, domain.ErrProductNotFound, domain.ErrUserNotFound} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "not found"
}

// validationError reports the first failing field of a validator error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return newError(codes.InvalidArgument, "invalid input", err)
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "gte":
		msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return newError(codes.InvalidArgument, msg, err)
}
