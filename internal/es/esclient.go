package es

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/incident_desk/internal/config"
)

// NewClient connects and checks the cluster answers. It returns nil, nil when
// no URL is configured.
func NewClient(cfg config.Config, logger *slog.Logger) (*elasticsearch.Client, error) {
	if cfg.ESURL == "" {
		return nil, nil
	}
	l := logger.With("component", "elasticsearch", "url", cfg.ESURL)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.ESURL},
		Username:  cfg.ESUser,
		Password:  cfg.ESPassword,
	})
	if err != nil {
		l.Error("es_client_error", "error", err)
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		l.Error("es_info_error", "error", err)
		return nil, fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		l.Error("es_info_error", "status", res.StatusCode, "body", string(body))
		return nil, fmt.Errorf("elasticsearch: info: %s", res.Status())
	}

	l.Info("es_connected")
	return client, nil
}
