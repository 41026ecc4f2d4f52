package access

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectPayoutSchedule = "payout_schedule"
	ObjectEscrowHold     = "escrow_hold"
	ObjectAuditLog       = "audit_log"
	ObjectPlacement      = "placement"
)

const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionTrigger    = "trigger"
	ActionCancel     = "cancel"
	ActionRelease    = "release"
	ActionExpire     = "expire"
	ActionProcessDue = "process_due"
	ActionView       = "view"
	ActionViewAll    = "view_all"
)

// Authorizer answers capability questions for an access context.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
	log      *zap.Logger
}

func NewAuthorizer(log *zap.Logger) (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer, log: log.Named("access.authorizer")}, nil
}

// Authorize returns nil when any of the caller's roles grants action on object.
func (a *Authorizer) Authorize(ctx context.Context, ac Context, object, action string) error {
	if ac.UserID == "" {
		return ErrUnauthenticated
	}
	for _, role := range ac.Roles {
		allowed, err := a.enforcer.Enforce("role:"+role, object, action)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}
	a.log.Info("capability denied",
		zap.String("user_id", ac.UserID),
		zap.String("object", object),
		zap.String("action", action),
	)
	return fmt.Errorf("%w: %s.%s requires administrative access", ErrForbidden, object, action)
}

func (a *Authorizer) Can(ctx context.Context, ac Context, object, action string) bool {
	return a.Authorize(ctx, ac, object, action) == nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", "*"},

		{"role:system", ObjectPayoutSchedule, ActionProcessDue},
		{"role:system", ObjectPayoutSchedule, ActionViewAll},
		{"role:system", ObjectEscrowHold, ActionProcessDue},
		{"role:system", ObjectEscrowHold, ActionViewAll},

		{"role:member", ObjectPayoutSchedule, ActionView},
		{"role:member", ObjectEscrowHold, ActionView},
		{"role:member", ObjectPlacement, ActionView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
