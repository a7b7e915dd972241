package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/incident_desk/internal/models"
)

const MaxAuditEntries = 100

type AuditFilter struct {
	TargetType *models.TargetType
	Action     *models.AuditAction
	// From and To bound the timestamp inclusively when set.
	From *time.Time
	To   *time.Time
}

func (r *GormRepo) CreateAudit(ctx context.Context, entry *models.AuditLog) error {
	return r.DB.WithContext(ctx).Omit("PerformedBy").Create(entry).Error
}

// ListAudit returns at most MaxAuditEntries entries, newest first.
func (r *GormRepo) ListAudit(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	q := r.DB.WithContext(ctx).Preload("PerformedBy", userSummary).Model(&models.AuditLog{})
	if f.TargetType != nil {
		q = q.Where("target_type = ?", *f.TargetType)
	}
	if f.Action != nil {
		q = q.Where("action = ?", *f.Action)
	}
	if f.From != nil {
		q = q.Where("timestamp >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("timestamp <= ?", f.To.UTC())
	}

	entries := []models.AuditLog{}
	if err := q.Order("timestamp DESC").Order("id").Limit(MaxAuditEntries).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
