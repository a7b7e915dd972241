package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, true
	}
	return "", false
}

type User struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	Name             string    `gorm:"not null"               json:"name"`
	Email            string    `gorm:"uniqueIndex;not null"   json:"email"`
	PasswordHash     string    `gorm:"not null"               json:"-"`
	Role             Role      `gorm:"not null;default:user"  json:"role"`
	IsBlocked        bool      `gorm:"not null;default:false" json:"isBlocked"`
	RefreshTokenHash string    `                              json:"-"`
	CreatedAt        time.Time `                              json:"createdAt"`
	UpdatedAt        time.Time `                              json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type AuditAction string

const (
	ActionCreate     AuditAction = "CREATE"
	ActionUpdate     AuditAction = "UPDATE"
	ActionDelete     AuditAction = "DELETE"
	ActionBulkUpdate AuditAction = "BULK_UPDATE"
)

func ParseAuditAction(s string) (AuditAction, bool) {
	switch a := AuditAction(s); a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionBulkUpdate:
		return a, true
	}
	return "", false
}

type TargetType string

const (
	TargetIncident TargetType = "Incident"
	TargetUser     TargetType = "User"
)

func ParseTargetType(s string) (TargetType, bool) {
	switch t := TargetType(s); t {
	case TargetIncident, TargetUser:
		return t, true
	}
	return "", false
}

// AuditLog rows are append-only: nothing in the repository updates or deletes them.
type AuditLog struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey"      json:"id"`
	Action        AuditAction `gorm:"not null;index"            json:"action"`
	PerformedByID uuid.UUID   `gorm:"type:uuid;not null;index"  json:"performedById"`
	PerformedBy   *User       `gorm:"foreignKey:PerformedByID"  json:"-"`
	TargetType    TargetType  `gorm:"not null;index"            json:"targetType"`
	TargetID      string      `gorm:"index"                     json:"targetId"`
	Details       string      `gorm:"type:text"                 json:"details"`
	IPAddress     string      `                                 json:"ipAddress"`
	Timestamp     time.Time   `gorm:"not null;index"            json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func All() []any {
	return []any{&User{}, &Incident{}, &AuditLog{}}
}
