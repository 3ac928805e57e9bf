package stage

import "time"

// Reading is a point-in-time snapshot of one operation.
type Reading struct {
	Process string `json:"process"`
	Node    string `json:"operation_name"`
	Version string `json:"version"`
	Input   int64  `json:"input_records"`
	Output  int64  `json:"output_records"`
	// Errored counts messages dropped after every attempt failed.
	Errored int64 `json:"errored_records"`
	// FailedAttempts counts every failed execution, retries included.
	FailedAttempts   int64          `json:"failed_attempts"`
	Ratio            float64        `json:"input_output_ratio"`
	RecordsPerSecond float64        `json:"records_per_second"`
	ExecutionStart   time.Time      `json:"execution_start"`
	ExecutionTime    time.Duration  `json:"-"`
	ExecutionSeconds float64        `json:"execution_time"`
	Extra            map[string]any `json:"extra,omitempty"`
}
