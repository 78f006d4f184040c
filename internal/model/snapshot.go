package model

import (
	"encoding/json"
	"time"
)

// Snapshot is a persisted, opaque JSON blob tagged with the time it was saved.
type Snapshot struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
	SavedAt time.Time       `json:"saved_at"`
}
