package model

// ApprovalStats aggregates headline counts for one facility's full request
// population. Derived on demand, never stored.
type ApprovalStats struct {
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
	Urgent   int64 `json:"urgent"` // priority URGENT and status PENDING
}
