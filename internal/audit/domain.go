package audit

import "time"

// Entry is one row of the append-only audit trail.
type Entry struct {
	ID         int64          `json:"id"`
	CompanyID  int64          `json:"company_id"`
	ActorID    int64          `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	CompanyID int64
	From      *time.Time
	To        *time.Time
	ActorID   int64
	Entity    string
	Action    string
	Page      int
	PageSize  int
}

// PagingInfo reports position within the timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
