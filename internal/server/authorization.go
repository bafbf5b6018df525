package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/flightclub/internal/actor"
	"github.com/smallbiznis/flightclub/internal/authorization"
	obscontext "github.com/smallbiznis/flightclub/internal/observability/context"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
)

const (
	ObjectLedger   = authorization.ObjectLedger
	ObjectFlight   = authorization.ObjectFlight
	ObjectBalance  = authorization.ObjectBalance
	ObjectAuditLog = authorization.ObjectAuditLog

	ActionLedgerPost    = authorization.ActionLedgerPost
	ActionLedgerReverse = authorization.ActionLedgerReverse
	ActionLedgerEdit    = authorization.ActionLedgerEdit
	ActionLedgerView    = authorization.ActionLedgerView
	ActionLedgerExport  = authorization.ActionLedgerExport
	ActionFlightCharge  = authorization.ActionFlightCharge
	ActionFlightView    = authorization.ActionFlightView
	ActionBalanceView   = authorization.ActionBalanceView
	ActionAuditLogView  = authorization.ActionAuditLogView
)

// The upstream gateway authenticates the caller and forwards its identity in
// these headers.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorType  = "X-Actor-Type"
	HeaderActorRoles = "X-Actor-Roles"

	contextActorKey = "actor"
)

// ActorRequired resolves the calling actor from the gateway headers.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		by, err := actorFromHeaders(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextActorKey, by)
		ctx := obscontext.WithActor(c.Request.Context(), by.Type, by.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFromHeaders(c *gin.Context) (actor.Actor, error) {
	id := strings.TrimSpace(c.GetHeader(HeaderActorID))
	kind := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorType)))

	var by actor.Actor
	switch kind {
	case "", actor.TypeUser:
		by = actor.User(id, splitRoles(c.GetHeader(HeaderActorRoles))...)
	case actor.TypeSystem:
		by = actor.System()
	default:
		return actor.Actor{}, ErrUnauthorized
	}
	if err := by.Validate(); err != nil {
		return actor.Actor{}, ErrUnauthorized
	}
	return by, nil
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (s *Server) actorFromContext(c *gin.Context) (actor.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return actor.Actor{}, false
	}
	by, ok := value.(actor.Actor)
	return by, ok
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		by, ok := s.actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), by, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeAccount checks access to one owner ledger; members pass for their
// own user account.
func (s *Server) authorizeAccount(c *gin.Context, owner ownerdomain.Ref, action string) (actor.Actor, error) {
	by, ok := s.actorFromContext(c)
	if !ok {
		return actor.Actor{}, ErrUnauthorized
	}
	if err := s.authzSvc.AuthorizeAccount(c.Request.Context(), by, owner, action); err != nil {
		return actor.Actor{}, err
	}
	return by, nil
}

// chargeRateLimit throttles charging per actor; cost is the number of
// tokens the route spends.
func (s *Server) chargeRateLimit(cost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		by, ok := s.actorFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		res := s.limiter.Allow(c.Request.Context(), by.Subject(), cost)
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
