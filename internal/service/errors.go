package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/settlement"
	"github.com/mmynk/foliodesk/internal/storage"
)

// toConnectError maps domain errors onto Connect codes.
// Backend rejections wrapped in a CollaboratorError keep their own code so
// callers can tell "not found" from "backend unavailable".
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var (
		validationErr *calculator.ValidationError
		stateErr      *settlement.StateViolationError
		blockedErr    *settlement.CheckoutBlockedError
		concurrentErr *settlement.ConcurrentAttemptError
		collabErr     *settlement.CollaboratorError
	)
	switch {
	case errors.As(err, &validationErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case settlement.IsReplayMismatch(err), errors.Is(err, storage.ErrKeyConflict):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &stateErr), errors.As(err, &blockedErr), errors.Is(err, storage.ErrFolioNotActive):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &concurrentErr):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, storage.ErrInvalidOperation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &collabErr):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}
