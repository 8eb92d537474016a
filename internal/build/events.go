package build

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// EventType classifies build lifecycle events.
type EventType string

const (
	EventBuildStarted   EventType = "build.started"
	EventStageCompleted EventType = "stage.completed"
	EventBuildCompleted EventType = "build.completed"
	EventBuildFailed    EventType = "build.failed"
)

// Event is one build lifecycle notification.
type Event struct {
	BuildID string         `json:"build_id"`
	Type    EventType      `json:"type"`
	Stage   string         `json:"stage,omitempty"`
	Time    time.Time      `json:"time"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// EventSink receives build lifecycle events. Publishing is best effort: a
// sink failure never fails a build.
type EventSink interface {
	Publish(ev Event)
	Close()
}

// LogSink writes events to the structured log. It is the default sink.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Publish(ev Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		logfields.BuildID(ev.BuildID),
		slog.String("event", string(ev.Type)),
	}
	if ev.Stage != "" {
		attrs = append(attrs, logfields.Stage(ev.Stage))
	}
	logger.Debug("build event", attrs...)
}

func (s *LogSink) Close() {}

// NATSSink publishes events as JSON to a NATS subject, enabling external
// tooling (deploy triggers, dashboards) to follow builds.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSSink connects to the given NATS server.
func NewNATSSink(url, subject string, logger *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{conn: conn, subject: subject, logger: logger}, nil
}

func (s *NATSSink) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Warn("event publish failed", logfields.Error(err))
	}
}

func (s *NATSSink) Close() {
	s.conn.Drain() //nolint:errcheck
}

// MultiSink fans one event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(ev Event) {
	for _, sink := range m {
		sink.Publish(ev)
	}
}

func (m MultiSink) Close() {
	for _, sink := range m {
		sink.Close()
	}
}
