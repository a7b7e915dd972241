package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/incident_desk/internal/metrics"
	"github.com/Skotchmaster/incident_desk/internal/models"
	"github.com/Skotchmaster/incident_desk/internal/transport"
)

const (
	EventNewIncident         = "newIncident"
	EventIncidentUpdated     = "incidentUpdated"
	EventUserIncidentUpdated = "userIncidentUpdated"
	EventError               = "error"
)

type Kind int

const (
	Created Kind = iota
	Updated
)

func (k Kind) String() string {
	if k == Created {
		return "incident_created"
	}
	return "incident_updated"
}

// Delivery is one planned send: to every connection, or to one user's channel.
type Delivery struct {
	Broadcast bool
	UserID    uuid.UUID
	Message   Message
}

// Plan lists the deliveries an incident event produces.
func Plan(kind Kind, inc *models.Incident) []Delivery {
	data := transport.NewIncidentResponse(inc)
	switch kind {
	case Created:
		return []Delivery{
			{Broadcast: true, Message: Message{Event: EventNewIncident, Data: data}},
		}
	case Updated:
		return []Delivery{
			{UserID: inc.ReportedByID, Message: Message{Event: EventUserIncidentUpdated, Data: data}},
			{Broadcast: true, Message: Message{Event: EventIncidentUpdated, Data: data}},
		}
	}
	return nil
}

// Publisher forwards events to other processes.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

type BrokerEvent struct {
	Type       string                     `json:"type"`
	IncidentID uuid.UUID                  `json:"incidentId"`
	Incident   transport.IncidentResponse `json:"incident"`
	OccurredAt time.Time                  `json:"occurredAt"`
}

const publishTimeout = 5 * time.Second

// Router turns incident changes into client deliveries and broker events.
// It holds no incident state of its own.
type Router struct {
	Registry  *Registry
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	wg sync.WaitGroup
}

func (r *Router) NotifyCreated(ctx context.Context, inc *models.Incident) {
	r.dispatch(ctx, Created, inc)
}

func (r *Router) NotifyUpdated(ctx context.Context, inc *models.Incident) {
	r.dispatch(ctx, Updated, inc)
}

func (r *Router) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Router) dispatch(_ context.Context, kind Kind, inc *models.Incident) {
	if r.Registry != nil {
		for _, d := range Plan(kind, inc) {
			if d.Broadcast {
				r.Registry.Broadcast(d.Message)
			} else {
				r.Registry.SendToUser(d.UserID, d.Message)
			}
		}
	}

	if r.Publisher == nil {
		return
	}
	evt := BrokerEvent{
		Type:       kind.String(),
		IncidentID: inc.ID,
		Incident:   transport.NewIncidentResponse(inc),
		OccurredAt: time.Now().UTC(),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := r.Publisher.PublishEvent(ctx, inc.ID.String(), evt); err != nil {
			r.logger().Warn("incident_event_publish_failed", "type", evt.Type, "incident_id", inc.ID, "error", err)
			if r.Metrics != nil {
				r.Metrics.EventPublishFailed.Inc()
			}
		}
	}()
}

// Wait blocks until in-flight broker publishes finish or ctx ends.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
