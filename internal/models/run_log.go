package models

import (
	"time"

	"github.com/resale-scanner/internal/types"
)

// RunLog represents one per-record attempt outcome, appended for every
// processed record so operators can audit the pipeline's behavior over time.
type RunLog struct {
	ID        int64                  `json:"id" db:"id"`
	RunID     string                 `json:"runId" db:"run_id"`
	ProductID string                 `json:"productId" db:"product_id"`
	Kind      types.RunKind          `json:"kind" db:"kind"`
	Status    types.ResolutionStatus `json:"status" db:"status"`
	Error     *string                `json:"error,omitempty" db:"error"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
}

// PolicySetting represents one operator-tunable threshold stored in the
// settings table as a name/value pair.
type PolicySetting struct {
	Name      string    `json:"name" db:"setting_name"`
	Value     string    `json:"value" db:"setting_value"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
