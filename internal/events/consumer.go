package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Subscriber yields the raw message stream of a topic.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// EventHandler processes one decoded certification event. A returned error
// nacks the message.
type EventHandler func(ctx context.Context, event *CertificationEvent) error

// ConsumeEvents decodes and dispatches messages until ctx is done or the
// stream closes. Undecodable messages are logged and acked so they cannot
// block the stream.
func ConsumeEvents(ctx context.Context, sub Subscriber, logger *slog.Logger, handle EventHandler) error {
	messages, err := sub.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var event CertificationEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("Dropping undecodable certification event",
					"message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}

			if err := handle(msg.Context(), &event); err != nil {
				logger.Error("Certification event handler failed",
					"event_id", event.ID, "event_type", event.Type, "error", err)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// SupportNoticeHandler logs the support follow-up a flagged attempt needs.
// Other event types are acknowledged untouched.
func SupportNoticeHandler(logger *slog.Logger) EventHandler {
	return func(ctx context.Context, event *CertificationEvent) error {
		if event.Type != EventExamFlagged {
			return nil
		}
		data, _ := event.Data.(map[string]interface{})
		logger.InfoContext(ctx, "Support review required for flagged attempt",
			"event_id", event.ID,
			"attempt_id", data["attempt_id"],
			"candidate_id", data["candidate_id"],
			"certificate_validity", data["certificate_validity"])
		return nil
	}
}
