package service

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/policy"
	"github.com/Skotchmaster/incident_desk/internal/repo"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

type AuditService struct {
	Repo *repo.GormRepo
}

// List returns the newest matching entries. Both date bounds are inclusive.
func (s *AuditService) List(ctx context.Context, actor policy.Subject, q transport.AuditQuery) ([]models.AuditLog, error) {
	if err := authorize(actor, policy.AuditList, nil); err != nil {
		return nil, err
	}

	var f repo.AuditFilter
	if q.TargetType != "" {
		tt, ok := models.ParseTargetType(q.TargetType)
		if !ok {
			return nil, fmt.Errorf("%w: unknown targetType %q", ErrValidation, q.TargetType)
		}
		f.TargetType = &tt
	}
	if q.Action != "" {
		a, ok := models.ParseAuditAction(q.Action)
		if !ok {
			return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, q.Action)
		}
		f.Action = &a
	}
	if q.StartDate != "" {
		from, err := transport.ParseDate(q.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: startDate", ErrValidation)
		}
		f.From = &from
	}
	if q.EndDate != "" {
		to, err := transport.ParseDate(q.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: endDate", ErrValidation)
		}
		f.To = &to
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, fmt.Errorf("%w: startDate is after endDate", ErrValidation)
	}

	return s.Repo.ListAudit(ctx, f)
}
