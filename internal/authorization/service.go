package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/flightclub/internal/actor"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

type Service interface {
	Authorize(ctx context.Context, by actor.Actor, object string, action string) error
	// AuthorizeAccount allows ActionLedgerView on any account and falls back
	// to ActionLedgerViewOwn when the actor reads its own user account.
	AuthorizeAccount(ctx context.Context, by actor.Actor, owner ownerdomain.Ref, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
