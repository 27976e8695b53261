package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueConfig tunes the consumer side. Zero values fall back to defaults.
type QueueConfig struct {
	Workers    int
	RetryLimit int           // retries after the first attempt
	RetryDelay time.Duration // wait before a failed message is retried
	RetryPoll  time.Duration // how often due retries return to the queue
	JobTimeout time.Duration // per message deadline, 0 for none
}

// Stats is a snapshot of the queue backlog.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// Message is the envelope stored on the Redis lists.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ParsePayload turns whatever a job was handed into a *T. Raw JSON is
// decoded directly; maps, slices and other values go through a JSON round
// trip.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var out T
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &out, nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}
