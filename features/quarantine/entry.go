package quarantine

import (
	"encoding/json"
	"time"
)

// Entry is a buried job awaiting an operator.
type Entry struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	JobID        string          `json:"job_id"`
	Payload      json.RawMessage `json:"payload"`
	Reason       string          `json:"reason"`
	Reservations int             `json:"reservations"`
	CreatedAt    time.Time       `json:"created_at"`
}
