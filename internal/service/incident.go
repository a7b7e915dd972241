package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/incident_desk/internal/logging"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

// Notifier is told about every incident that was created or changed.
type Notifier interface {
	NotifyCreated(ctx context.Context, inc *models.Incident)
	NotifyUpdated(ctx context.Context, inc *models.Incident)
}

type EvidenceRemover interface {
	Remove(ctx context.Context, refs []string) error
}

type IncidentService struct {
	Repo     *repo.GormRepo
	Notifier Notifier
	Evidence EvidenceRemover
	Now      func() time.Time
}

func (s *IncidentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func authorize(actor policy.Subject, action policy.Action, owner *uuid.UUID) error {
	if err := policy.Authorize(actor, action, owner); err != nil {
		return fmt.Errorf("%w: %s", ErrForbidden, action)
	}
	return nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", ErrValidation, raw)
	}
	return id, nil
}

func (s *IncidentService) load(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	inc, err := s.Repo.GetIncident(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: incident", ErrNotFound)
		}
		return nil, err
	}
	return inc, nil
}

func (s *IncidentService) Create(ctx context.Context, actor policy.Subject, req transport.CreateIncidentRequest, evidence []string) (*models.Incident, error) {
	l := logging.FromContext(ctx).With("svc", "incident.create")

	if err := authorize(actor, policy.IncidentCreate, nil); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		return nil, fmt.Errorf("%w: title and description are required", ErrValidation)
	}
	category, ok := models.ParseCategory(req.Category)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, req.Category)
	}
	priority, ok := models.ParsePriority(req.Priority)
	if !ok {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, req.Priority)
	}

	inc := &models.Incident{
		Title:        title,
		Description:  description,
		Category:     category,
		Priority:     priority,
		Status:       models.StatusOpen,
		Evidence:     evidence,
		ReportedByID: actor.ID,
	}
	if req.Date != "" {
		d, err := transport.ParseDate(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date", ErrValidation)
		}
		inc.Date = &d
	}
	if inc.Evidence == nil {
		inc.Evidence = []string{}
	}

	if err := s.Repo.CreateIncident(ctx, inc); err != nil {
		l.Error("incident_create_error", "status", 500, "reason", "cannot insert incident", "error", err)
		return nil, err
	}

	created, err := s.load(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	if s.Notifier != nil {
		s.Notifier.NotifyCreated(ctx, created)
	}
	return created, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrValidation, raw)
	}
	return &id, nil
}

// List applies the caller's scope on top of the query filters: users below
// admin only ever see the incidents they reported.
func (s *IncidentService) List(ctx context.Context, actor policy.Subject, q transport.ListIncidentsQuery) ([]models.Incident, error) {
	if err := authorize(actor, policy.IncidentList, nil); err != nil {
		return nil, err
	}

	var f repo.IncidentFilter
	if q.Status != "" {
		st, ok := models.ParseStatus(q.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, q.Status)
		}
		f.Status = &st
	}
	if q.Category != "" {
		c, ok := models.ParseCategory(q.Category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, q.Category)
		}
		f.Category = &c
	}
	if q.Priority != "" {
		p, ok := models.ParsePriority(q.Priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, q.Priority)
		}
		f.Priority = &p
	}

	sort, err := repo.ParseSort(q.SortBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	f.Sort = sort

	if f.ReportedBy, err = optionalUUID(q.ReportedBy); err != nil {
		return nil, err
	}
	if f.AssignedTo, err = optionalUUID(q.AssignedTo); err != nil {
		return nil, err
	}
	if owner := policy.Scope(actor, policy.IncidentList); owner != nil {
		f.ReportedBy = owner
	}

	return s.Repo.ListIncidents(ctx, f)
}

func (s *IncidentService) Get(ctx context.Context, actor policy.Subject, rawID string) (*models.Incident, error) {
	if err := authorize(actor, policy.IncidentRead, nil); err != nil {
		return nil, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, policy.IncidentRead, &inc.ReportedByID); err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *IncidentService) resolveAssignee(ctx context.Context, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	u, err := s.Repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: assignee does not exist", ErrValidation)
		}
		return nil, err
	}
	if policy.Rank(u.Role) < policy.Rank(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: assignee must be an admin", ErrValidation)
	}
	return &u.ID, nil
}

// Update replaces the fields present in req. The reporter never changes.
func (s *IncidentService) Update(ctx context.Context, actor policy.Subject, rawID string, req transport.UpdateIncidentRequest) (*models.Incident, error) {
	l := logging.FromContext(ctx).With("svc", "incident.update")

	if err := authorize(actor, policy.IncidentUpdate, nil); err != nil {
		return nil, err
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	inc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		inc.Title = t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" {
			return nil, fmt.Errorf("%w: description must not be empty", ErrValidation)
		}
		inc.Description = d
	}
	if req.Category != nil {
		c, ok := models.ParseCategory(*req.Category)
		if !ok {
			return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, *req.Category)
		}
		inc.Category = c
	}
	if req.Priority != nil {
		p, ok := models.ParsePriority(*req.Priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, *req.Priority)
		}
		inc.Priority = p
	}
	if req.Date != nil {
		if *req.Date == "" {
			inc.Date = nil
		} else {
			d, err := transport.ParseDate(*req.Date)
			if err != nil {
				return nil, fmt.Errorf("%w: date", ErrValidation)
			}
			inc.Date = &d
		}
	}
	if req.AssignedTo != nil {
		assignee, err := s.resolveAssignee(ctx, *req.AssignedTo)
		if err != nil {
			return nil, err
		}
		inc.AssignedToID = assignee
		inc.AssignedTo = nil
	}
	if req.Status != nil {
		st, ok := models.ParseStatus(*req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *req.Status)
		}
		inc.ApplyStatus(st, s.now())
	}

	if err := s.Repo.SaveIncident(ctx, inc); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: incident", ErrNotFound)
		}
		l.Error("incident_update_error", "status", 500, "reason", "cannot save incident", "error", err)
		return nil, err
	}

	updated, err := s.load(ctx, inc.ID)
	if err != nil {
		return nil, err
	}
	if s.Notifier != nil {
		s.Notifier.NotifyUpdated(ctx, updated)
	}
	return updated, nil
}

func (s *IncidentService) Delete(ctx context.Context, actor policy.Subject, rawID string) error {
	l := logging.FromContext(ctx).With("svc", "incident.delete")

	if err := authorize(actor, policy.IncidentDelete, nil); err != nil {
		return err
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	inc, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := s.Repo.DeleteIncident(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: incident", ErrNotFound)
		}
		return err
	}

	if s.Evidence != nil && len(inc.Evidence) > 0 {
		if err := s.Evidence.Remove(ctx, inc.Evidence); err != nil {
			l.Warn("evidence_remove_failed", "incident_id", id, "error", err)
		}
	}
	return nil
}

// BulkUpdateStatus handles each id on its own. One bad id never rolls back
// or blocks the others; its outcome is reported instead.
func (s *IncidentService) BulkUpdateStatus(ctx context.Context, actor policy.Subject, req transport.BulkUpdateRequest) ([]transport.BulkResult, error) {
	l := logging.FromContext(ctx).With("svc", "incident.bulk_update")

	if err := authorize(actor, policy.IncidentBulkUpdate, nil); err != nil {
		return nil, err
	}
	if len(req.IDs) == 0 {
		return nil, fmt.Errorf("%w: ids are required", ErrValidation)
	}
	status, ok := models.ParseStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}

	results := make([]transport.BulkResult, 0, len(req.IDs))
	for _, raw := range req.IDs {
		res := transport.BulkResult{ID: raw}

		id, err := uuid.Parse(raw)
		if err != nil {
			res.Outcome = transport.OutcomeInvalidID
			results = append(results, res)
			continue
		}

		inc, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				res.Outcome = transport.OutcomeNotFound
			} else {
				l.Error("bulk_update_item_failed", "incident_id", id, "error", err)
				res.Outcome = transport.OutcomeFailed
			}
			results = append(results, res)
			continue
		}

		inc.ApplyStatus(status, s.now())
		if err := s.Repo.SaveIncident(ctx, inc); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res.Outcome = transport.OutcomeNotFound
			} else {
				l.Error("bulk_update_item_failed", "incident_id", id, "error", err)
				res.Outcome = transport.OutcomeFailed
			}
			results = append(results, res)
			continue
		}

		res.Outcome = transport.OutcomeUpdated
		results = append(results, res)
		if s.Notifier != nil {
			s.Notifier.NotifyUpdated(ctx, inc)
		}
	}
	return results, nil
}

func (s *IncidentService) Analytics(ctx context.Context, actor policy.Subject) (*repo.IncidentStats, error) {
	if err := authorize(actor, policy.IncidentAnalytics, nil); err != nil {
		return nil, err
	}
	return s.Repo.IncidentStats(ctx)
}
