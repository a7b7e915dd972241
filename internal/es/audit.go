package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"

	"github.com/Skotchmaster/incident_desk/internal/models"
)

const auditMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "action":        {"type": "keyword"},
      "performedById": {"type": "keyword"},
      "targetType":    {"type": "keyword"},
      "targetId":      {"type": "keyword"},
      "details":       {"type": "text"},
      "ipAddress":     {"type": "keyword"},
      "timestamp":     {"type": "date"}
    }
  }
}`

type AuditDocument struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	PerformedByID string    `json:"performedById"`
	TargetType    string    `json:"targetType"`
	TargetID      string    `json:"targetId"`
	Details       string    `json:"details"`
	IPAddress     string    `json:"ipAddress"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewAuditDocument(entry *models.AuditLog) AuditDocument {
	return AuditDocument{
		ID:            entry.ID.String(),
		Action:        string(entry.Action),
		PerformedByID: entry.PerformedByID.String(),
		TargetType:    string(entry.TargetType),
		TargetID:      entry.TargetID,
		Details:       entry.Details,
		IPAddress:     entry.IPAddress,
		Timestamp:     entry.Timestamp.UTC(),
	}
}

// AuditIndexer mirrors audit entries into a search index.
type AuditIndexer struct {
	Client *elasticsearch.Client
	Index  string
}

func (a *AuditIndexer) Name() string { return "elasticsearch" }

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (a *AuditIndexer) EnsureIndex(ctx context.Context) error {
	res, err := a.Client.Indices.Exists([]string{a.Index}, a.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = a.Client.Indices.Create(a.Index,
		a.Client.Indices.Create.WithContext(ctx),
		a.Client.Indices.Create.WithBody(strings.NewReader(auditMapping)),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: create index: %w", err)
	}
	return checkResponse(res, "create index")
}

// Write indexes the entry under its own id, so a retried write replaces
// rather than duplicates.
func (a *AuditIndexer) Write(ctx context.Context, entry *models.AuditLog) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(NewAuditDocument(entry)); err != nil {
		return fmt.Errorf("elasticsearch: encode audit: %w", err)
	}

	res, err := a.Client.Index(a.Index, &buf,
		a.Client.Index.WithContext(ctx),
		a.Client.Index.WithDocumentID(entry.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: index audit: %w", err)
	}
	return checkResponse(res, "index audit")
}

func checkResponse(res *esapi.Response, op string) error {
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch: %s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
	}
	return nil
}
