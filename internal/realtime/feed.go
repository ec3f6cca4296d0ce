package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageInsertChannel is the Postgres NOTIFY channel fed by the messages
// insert trigger.
const MessageInsertChannel = "message_inserts"

// InsertEvent is the raw change notification for one new message row. It
// carries ids only; consumers point-fetch the row for display fields.
type InsertEvent struct {
	MessageID uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
}

type ChangeFeed interface {
	// Subscribe delivers insert events for one session until ctx is done,
	// then closes the returned channel.
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan InsertEvent, error)
}

// Notifier is implemented by feeds that are not driven by the database and
// need the writer to announce inserts.
type Notifier interface {
	Publish(ctx context.Context, event InsertEvent) error
}

func DecodeEvent(payload []byte) (InsertEvent, error) {
	var event InsertEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return InsertEvent{}, fmt.Errorf("decode insert event: %w", err)
	}
	if event.MessageID == uuid.Nil || event.SessionID == uuid.Nil {
		return InsertEvent{}, fmt.Errorf("decode insert event: missing ids")
	}
	return event, nil
}
