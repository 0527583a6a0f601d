package viewmodels

type Duration struct {
	TaskID          int64   `json:"task_id"`
	AssignedSeconds float64 `json:"assigned_duration_seconds"`
	WorkingSeconds  float64 `json:"working_duration_seconds"`
	LastFetchedAt   string  `json:"last_fetched_at"`
}

type Durations struct {
	State   string     `json:"state"`
	Entries []Duration `json:"entries"`
}

// StreamMessage is one websocket frame.
type StreamMessage struct {
	Type    string     `json:"type"`
	Seq     uint64     `json:"seq,omitempty"`
	Entries []Duration `json:"entries,omitempty"`
	TaskID  int64      `json:"task_id,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	State   string     `json:"state,omitempty"`
}
