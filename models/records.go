package models

import (
	"encoding/json"
	"time"
)

// ErrorRecord captures a rendering fault for the local error log.
type ErrorRecord struct {
	ID             string            `json:"id"`
	Message        string            `json:"message"`
	Stack          string            `json:"stack"`
	ComponentStack string            `json:"componentStack"`
	Timestamp      time.Time         `json:"timestamp"`
	Context        map[string]string `json:"context,omitempty"`
}

// QueueItem is a payload waiting for connectivity to be saved.
type QueueItem struct {
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}
