package fl

import "time"

// Client is a registry entry kept by the coordinator. Entries are never
// removed by the protocol.
type Client struct {
	ID           string    `json:"id"            db:"id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	LastSeen     time.Time `json:"last_seen"     db:"last_seen"`
	Updates      uint64    `json:"updates"       db:"updates"`
}

// Round records the outcome of one aggregated round.
type Round struct {
	RunID        string    `json:"run_id"`
	Epoch        int       `json:"epoch"`
	Chosen       []string  `json:"chosen"`
	Contributors []string  `json:"contributors"`
	Lagging      []string  `json:"lagging,omitempty"`
	WeightFile   string    `json:"weight_file"`
	BiasFile     string    `json:"bias_file"`
	Metrics      Metrics   `json:"metrics"`
	Degraded     bool      `json:"degraded"`
	Converged    bool      `json:"converged"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
