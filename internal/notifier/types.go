package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	// DedupWindow suppresses identical texts sent within the window. 0 disables.
	DedupWindow time.Duration
}

// Event is published on the bus for queued, sent, failed and dropped messages.
type Event struct {
	ChatID  int64     `json:"chat_id"`
	At      time.Time `json:"at"`
	Attempt int       `json:"attempt,omitempty"`
	Error   string    `json:"error,omitempty"`
}
