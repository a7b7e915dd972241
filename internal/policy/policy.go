package policy

import (
	"errors"

	"github.com/google/uuid"

	"github.com/Skotchmaster/incident_desk/internal/models"
)

type Action string

const (
	IncidentList       Action = "incident.list"
	IncidentRead       Action = "incident.read"
	IncidentCreate     Action = "incident.create"
	IncidentUpdate     Action = "incident.update"
	IncidentBulkUpdate Action = "incident.bulk_update"
	IncidentDelete     Action = "incident.delete"
	IncidentAnalytics  Action = "incident.analytics"
	AuditList          Action = "audit.list"
	UserList           Action = "user.list"
	UserUpdate         Action = "user.update"
	UserDelete         Action = "user.delete"
	RealtimeSubscribe  Action = "realtime.subscribe"
)

var ErrDenied = errors.New("access denied")

// Subject is the authenticated actor a decision is made for.
type Subject struct {
	ID   uuid.UUID
	Role models.Role
}

type rule struct {
	minRole models.Role
	// ownerBelow, when set, restricts subjects ranked below it to resources they own.
	ownerBelow models.Role
}

var rules = map[Action]rule{
	IncidentList:       {minRole: models.RoleUser, ownerBelow: models.RoleAdmin},
	IncidentRead:       {minRole: models.RoleUser, ownerBelow: models.RoleAdmin},
	IncidentCreate:     {minRole: models.RoleUser},
	IncidentUpdate:     {minRole: models.RoleAdmin},
	IncidentBulkUpdate: {minRole: models.RoleAdmin},
	IncidentDelete:     {minRole: models.RoleSuperAdmin},
	IncidentAnalytics:  {minRole: models.RoleAdmin},
	AuditList:          {minRole: models.RoleAdmin},
	UserList:           {minRole: models.RoleSuperAdmin},
	UserUpdate:         {minRole: models.RoleSuperAdmin},
	UserDelete:         {minRole: models.RoleSuperAdmin},
	RealtimeSubscribe:  {minRole: models.RoleUser},
}

var ranks = map[models.Role]int{
	models.RoleUser:       1,
	models.RoleAdmin:      2,
	models.RoleSuperAdmin: 3,
}

// Rank returns 0 for roles it does not know.
func Rank(r models.Role) int {
	return ranks[r]
}

// Allows reports whether the subject's role clears the action's minimum.
// Ownership is not considered; see Authorize.
func Allows(s Subject, a Action) bool {
	rl, ok := rules[a]
	if !ok {
		return false
	}
	rank := Rank(s.Role)
	return rank > 0 && rank >= Rank(rl.minRole)
}

// Authorize checks the action against a concrete resource owner.
// A nil owner means the action is not tied to a single resource.
func Authorize(s Subject, a Action, owner *uuid.UUID) error {
	if !Allows(s, a) {
		return ErrDenied
	}
	rl := rules[a]
	if owner != nil && rl.ownerBelow != "" && Rank(s.Role) < Rank(rl.ownerBelow) && *owner != s.ID {
		return ErrDenied
	}
	return nil
}

// Scope returns the owner id list queries must be restricted to, or nil when
// the subject may see every record.
func Scope(s Subject, a Action) *uuid.UUID {
	rl, ok := rules[a]
	if !ok || rl.ownerBelow == "" {
		return nil
	}
	if Rank(s.Role) < Rank(rl.ownerBelow) {
		id := s.ID
		return &id
	}
	return nil
}
