package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/incident_desk/internal/models"
)

var ErrInvalidSort = errors.New("invalid sort field")

var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"date":       "date",
	"title":      "title",
	"status":     "status",
	"priority":   "priority",
	"resolvedAt": "resolved_at",
}

type Sort struct {
	Column string
	Desc   bool
}

var DefaultSort = Sort{Column: "created_at", Desc: true}

// ParseSort accepts a field name with an optional leading "-" for descending order.
func ParseSort(s string) (Sort, error) {
	if s == "" {
		return DefaultSort, nil
	}
	desc := strings.HasPrefix(s, "-")
	col, ok := sortColumns[strings.TrimPrefix(s, "-")]
	if !ok {
		return Sort{}, fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
	return Sort{Column: col, Desc: desc}, nil
}

// orderBy appends id as a tie breaker so equal keys keep a stable order.
func (s Sort) orderBy() clause.OrderBy {
	if s.Column != "priority" {
		return clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: s.Column}, Desc: s.Desc},
			{Column: clause.Column{Name: "id"}},
		}}
	}

	// priority is ordered by rank, not by its label
	var b strings.Builder
	b.WriteString("CASE priority")
	for _, p := range models.Priorities {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Rank())
	}
	b.WriteString(" ELSE 0 END")
	if s.Desc {
		b.WriteString(" DESC")
	}
	b.WriteString(", id")
	return clause.OrderBy{Expression: clause.Expr{SQL: b.String(), WithoutParentheses: true}}
}

type IncidentFilter struct {
	Status     *models.Status
	Category   *models.Category
	Priority   *models.Priority
	ReportedBy *uuid.UUID
	AssignedTo *uuid.UUID
	Sort       Sort
}

func (r *GormRepo) withPeople(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).
		Preload("ReportedBy", userSummary).
		Preload("AssignedTo", userSummary)
}

func (r *GormRepo) CreateIncident(ctx context.Context, inc *models.Incident) error {
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(inc).Error
}

func (r *GormRepo) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var inc models.Incident
	if err := r.withPeople(ctx).Where("id = ?", id).First(&inc).Error; err != nil {
		return nil, err
	}
	return &inc, nil
}

func (r *GormRepo) ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error) {
	q := r.withPeople(ctx).Model(&models.Incident{})
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Category != nil {
		q = q.Where("category = ?", *f.Category)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}
	if f.ReportedBy != nil {
		q = q.Where("reported_by_id = ?", *f.ReportedBy)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to_id = ?", *f.AssignedTo)
	}

	sort := f.Sort
	if sort.Column == "" {
		sort = DefaultSort
	}

	items := []models.Incident{}
	if err := q.Order(sort.orderBy()).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// SaveIncident writes every mutable column of inc, zero values included.
// Related users are never written through it. A row deleted since inc was
// loaded is reported as gorm.ErrRecordNotFound rather than re-inserted.
func (r *GormRepo) SaveIncident(ctx context.Context, inc *models.Incident) error {
	res := r.DB.WithContext(ctx).
		Model(inc).
		Select("*").
		Omit("id", "created_at", "reported_by_id", clause.Associations).
		Updates(inc)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) DeleteIncident(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Delete(&models.Incident{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type CategoryCount struct {
	Category models.Category `json:"category"`
	Count    int64           `json:"count"`
}

type StatusCount struct {
	Status models.Status `json:"status"`
	Count  int64         `json:"count"`
}

type IncidentStats struct {
	TotalIncidents    int64           `json:"totalIncidents"`
	OpenIncidents     int64           `json:"openIncidents"`
	ResolvedIncidents int64           `json:"resolvedIncidents"`
	CategoryStats     []CategoryCount `json:"categoryStats"`
	StatusStats       []StatusCount   `json:"statusStats"`
	// AvgResolutionTime is in milliseconds.
	AvgResolutionTime float64 `json:"avgResolutionTime"`
}

func (r *GormRepo) IncidentStats(ctx context.Context) (*IncidentStats, error) {
	db := r.DB.WithContext(ctx)
	stats := IncidentStats{
		CategoryStats: []CategoryCount{},
		StatusStats:   []StatusCount{},
	}

	if err := db.Model(&models.Incident{}).Count(&stats.TotalIncidents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Incident{}).Where("status = ?", models.StatusOpen).Count(&stats.OpenIncidents).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Incident{}).Where("status = ?", models.StatusResolved).Count(&stats.ResolvedIncidents).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.Incident{}).
		Select("category, count(*) AS count").
		Group("category").
		Order("count DESC").Order("category").
		Scan(&stats.CategoryStats).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Incident{}).
		Select("status, count(*) AS count").
		Group("status").
		Order("count DESC").Order("status").
		Scan(&stats.StatusStats).Error; err != nil {
		return nil, err
	}

	// timestamp arithmetic differs per dialect, so the mean is taken here
	var resolved []models.Incident
	if err := db.Select("id", "created_at", "resolved_at").
		Where("status = ? AND resolved_at IS NOT NULL", models.StatusResolved).
		Find(&resolved).Error; err != nil {
		return nil, err
	}
	if len(resolved) > 0 {
		var total float64
		for _, inc := range resolved {
			total += float64(inc.ResolvedAt.Sub(inc.CreatedAt).Milliseconds())
		}
		stats.AvgResolutionTime = total / float64(len(resolved))
	}

	return &stats, nil
}
