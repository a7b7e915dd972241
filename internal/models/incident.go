package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryPhishing           Category = "Phishing"
	CategoryMalware            Category = "Malware"
	CategoryRansomware         Category = "Ransomware"
	CategoryUnauthorizedAccess Category = "Unauthorized Access"
	CategoryDataBreach         Category = "Data Breach"
	CategoryDDoS               Category = "DDoS"
	CategoryOther              Category = "Other"
)

var Categories = []Category{
	CategoryPhishing,
	CategoryMalware,
	CategoryRansomware,
	CategoryUnauthorizedAccess,
	CategoryDataBreach,
	CategoryDDoS,
	CategoryOther,
}

func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// Priorities is ordered from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func ParsePriority(s string) (Priority, bool) {
	for _, p := range Priorities {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Rank is 1 for Low through 4 for Critical, 0 for unknown values.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if v == p {
			return i + 1
		}
	}
	return 0
}

type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
	StatusClosed     Status = "Closed"
)

var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

func ParseStatus(s string) (Status, bool) {
	for _, v := range Statuses {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

type Incident struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"           json:"id"`
	Title        string     `gorm:"not null"                       json:"title"`
	Description  string     `gorm:"type:text;not null"             json:"description"`
	Category     Category   `gorm:"not null;index"                 json:"category"`
	Priority     Priority   `gorm:"not null;index"                 json:"priority"`
	Status       Status     `gorm:"not null;default:'Open';index"  json:"status"`
	Evidence     []string   `gorm:"serializer:json;type:text"      json:"evidence"`
	ReportedByID uuid.UUID  `gorm:"type:uuid;not null;index"       json:"reportedById"`
	ReportedBy   *User      `gorm:"foreignKey:ReportedByID"        json:"-"`
	AssignedToID *uuid.UUID `gorm:"type:uuid;index"                json:"assignedToId"`
	AssignedTo   *User      `gorm:"foreignKey:AssignedToID"        json:"-"`
	Date         *time.Time `                                      json:"date"`
	ResolvedAt   *time.Time `                                      json:"resolvedAt"`
	CreatedAt    time.Time  `gorm:"index"                          json:"createdAt"`
	UpdatedAt    time.Time  `                                      json:"updatedAt"`
}

func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = StatusOpen
	}
	return nil
}

func (i *Incident) BeforeSave(tx *gorm.DB) error {
	i.stampResolution(tx.NowFunc())
	return nil
}

// ApplyStatus replaces the status. The first transition into Resolved stamps
// ResolvedAt; a stamp that already exists is never moved or cleared.
func (i *Incident) ApplyStatus(s Status, now time.Time) {
	i.Status = s
	i.stampResolution(now)
}

func (i *Incident) stampResolution(now time.Time) {
	if i.Status == StatusResolved && i.ResolvedAt == nil {
		t := now
		i.ResolvedAt = &t
	}
}
