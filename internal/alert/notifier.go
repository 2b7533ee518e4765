package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fortilog-systems/fortilog/internal/config"
	"github.com/fortilog-systems/fortilog/internal/logging"
)

// Notifier delivers one alert message to an external channel. The returned
// bool reports delivery success; a failed delivery never blocks the rule from
// recording the alert.
type Notifier interface {
	Notify(ctx context.Context, ruleID, message string) bool
	Close() error
}

// LogNotifier writes alerts to the structured log. It is the default channel
// and the fallback when no message broker is configured.
type LogNotifier struct {
	log *logging.Logger
}

func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "alerts")}
}

func (n *LogNotifier) Notify(ctx context.Context, ruleID, message string) bool {
	n.log.WarnContext(ctx, "alert", "rule", ruleID, "message", message)
	return true
}

func (n *LogNotifier) Close() error { return nil }

type alertEnvelope struct {
	RuleID    string    `json:"rule_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSNotifier publishes alerts as JSON envelopes on a NATS subject so
// downstream responders can fan them out.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	log     *logging.Logger
}

func NewNATSNotifier(cfg config.NATSConfig, log *logging.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("fortilog-alerts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{
		conn:    conn,
		subject: cfg.Subject,
		log:     log.With("component", "alerts"),
	}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, ruleID, message string) bool {
	payload, err := json.Marshal(alertEnvelope{
		RuleID:    ruleID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		n.log.ErrorContext(ctx, "failed to marshal alert", "error", err)
		return false
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		n.log.ErrorContext(ctx, "failed to publish alert", "subject", n.subject, "error", err)
		return false
	}
	return true
}

func (n *NATSNotifier) Close() error {
	n.conn.Close()
	return nil
}
