package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/incident_desk/internal/models"
)

type UserSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

func Summary(u *models.User) *UserSummary {
	if u == nil || u.ID == uuid.Nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

type AuthResponse struct {
	ID           uuid.UUID   `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type IncidentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    models.Category `json:"category"`
	Priority    models.Priority `json:"priority"`
	Status      models.Status   `json:"status"`
	Evidence    []string        `json:"evidence"`
	ReportedBy  *UserSummary    `json:"reportedBy"`
	AssignedTo  *UserSummary    `json:"assignedTo"`
	Date        *time.Time      `json:"date"`
	ResolvedAt  *time.Time      `json:"resolvedAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewIncidentResponse(inc *models.Incident) IncidentResponse {
	evidence := inc.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	return IncidentResponse{
		ID:          inc.ID,
		Title:       inc.Title,
		Description: inc.Description,
		Category:    inc.Category,
		Priority:    inc.Priority,
		Status:      inc.Status,
		Evidence:    evidence,
		ReportedBy:  Summary(inc.ReportedBy),
		AssignedTo:  Summary(inc.AssignedTo),
		Date:        inc.Date,
		ResolvedAt:  inc.ResolvedAt,
		CreatedAt:   inc.CreatedAt,
		UpdatedAt:   inc.UpdatedAt,
	}
}

func NewIncidentList(items []models.Incident) []IncidentResponse {
	out := make([]IncidentResponse, 0, len(items))
	for i := range items {
		out = append(out, NewIncidentResponse(&items[i]))
	}
	return out
}

const (
	OutcomeUpdated   = "updated"
	OutcomeNotFound  = "not_found"
	OutcomeInvalidID = "invalid_id"
	OutcomeFailed    = "failed"
)

type BulkResult struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

type BulkUpdateResponse struct {
	Message string       `json:"message"`
	Results []BulkResult `json:"results"`
}

type AuditResponse struct {
	ID          uuid.UUID          `json:"id"`
	Action      models.AuditAction `json:"action"`
	PerformedBy *UserSummary       `json:"performedBy"`
	TargetType  models.TargetType  `json:"targetType"`
	TargetID    string             `json:"targetId"`
	Details     json.RawMessage    `json:"details"`
	IPAddress   string             `json:"ipAddress"`
	Timestamp   time.Time          `json:"timestamp"`
}

func NewAuditList(entries []models.AuditLog) []AuditResponse {
	out := make([]AuditResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, AuditResponse{
			ID:          e.ID,
			Action:      e.Action,
			PerformedBy: Summary(e.PerformedBy),
			TargetType:  e.TargetType,
			TargetID:    e.TargetID,
			Details:     rawDetails(e.Details),
			IPAddress:   e.IPAddress,
			Timestamp:   e.Timestamp,
		})
	}
	return out
}

func rawDetails(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
