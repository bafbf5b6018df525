package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/flightclub/internal/actor"
	auditdomain "github.com/smallbiznis/flightclub/internal/audit/domain"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectLedger   = "ledger"
	ObjectFlight   = "flight"
	ObjectBalance  = "balance"
	ObjectAuditLog = "audit_log"
)

const (
	ActionLedgerPost    = "ledger.post"
	ActionLedgerReverse = "ledger.reverse"
	ActionLedgerEdit    = "ledger.edit"
	ActionLedgerView    = "ledger.view"
	ActionLedgerViewOwn = "ledger.view_own"
	ActionLedgerExport  = "ledger.export"

	ActionFlightCharge = "flight.charge"
	ActionFlightView   = "flight.view"

	ActionBalanceView  = "balance.view"
	ActionAuditLogView = "audit_log.view"
)

const rolePrefix = "role:"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies from casbin_rule and seeds the role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

func newEnforcer(adapter persist.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	var enforcer *casbin.SyncedEnforcer
	if adapter == nil {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, by actor.Actor, object string, action string) error {
	if err := by.Validate(); err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforce(by, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, by, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) AuthorizeAccount(ctx context.Context, by actor.Actor, owner ownerdomain.Ref, action string) error {
	if err := by.Validate(); err != nil {
		return err
	}
	allowed, err := s.enforce(by, ObjectLedger, action)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	if action == ActionLedgerView && ownsAccount(by, owner) {
		allowed, err = s.enforce(by, ObjectLedger, ActionLedgerViewOwn)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}
	s.auditDenied(ctx, by, ObjectLedger, action)
	return ErrForbidden
}

func (s *ServiceImpl) enforce(by actor.Actor, object, action string) (bool, error) {
	subject := by.Subject()
	if err := s.syncRoles(subject, by.Roles); err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, object, action)
}

// syncRoles makes the subject's grouping policies match the roles carried
// by the request.
func (s *ServiceImpl) syncRoles(subject string, roles []string) error {
	want := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		want[rolePrefix+role] = struct{}{}
	}

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if _, ok := want[rule[1]]; ok {
			delete(want, rule[1])
			continue
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	for roleName := range want {
		if _, err := s.enforcer.AddGroupingPolicy(subject, roleName); err != nil {
			return err
		}
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, by actor.Actor, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("subject", by.Subject()),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, nil, by, auditdomain.ActionAccessDenied, auditdomain.TargetTypeCapability, object, map[string]any{
		"object":  object,
		"action":  action,
		"subject": by.Subject(),
		"roles":   strings.Join(by.Roles, ","),
	}); err != nil {
		s.log.Warn("failed to audit denied access", zap.Error(err))
	}
}

func ownsAccount(by actor.Actor, owner ownerdomain.Ref) bool {
	return by.Type == actor.TypeUser &&
		owner.Type == ownerdomain.TypeUser &&
		owner.ID != 0 &&
		strings.TrimSpace(by.ID) == owner.ID.String()
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	writer := []string{
		ActionLedgerPost, ActionLedgerReverse, ActionLedgerEdit, ActionLedgerView, ActionLedgerExport,
	}
	policies := [][]string{
		// Member permissions (own account only)
		{"role:member", ObjectLedger, ActionLedgerViewOwn},

		// Board permissions (read-only)
		{"role:board", ObjectLedger, ActionLedgerView},
		{"role:board", ObjectLedger, ActionLedgerExport},
		{"role:board", ObjectFlight, ActionFlightView},
		{"role:board", ObjectBalance, ActionBalanceView},
		{"role:board", ObjectAuditLog, ActionAuditLogView},
	}
	for _, role := range []string{actor.RoleAdmin, actor.RoleTreasurer} {
		for _, action := range writer {
			policies = append(policies, []string{rolePrefix + role, ObjectLedger, action})
		}
		policies = append(policies,
			[]string{rolePrefix + role, ObjectFlight, ActionFlightCharge},
			[]string{rolePrefix + role, ObjectFlight, ActionFlightView},
			[]string{rolePrefix + role, ObjectBalance, ActionBalanceView},
			[]string{rolePrefix + role, ObjectAuditLog, ActionAuditLogView},
		)
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
