package inventory

import "time"

// EntryApprovedEvent is emitted after a stock entry commits to the ledger.
// Consumers use it to trigger follow-up work such as low-stock alert scans.
type EntryApprovedEvent struct {
	EntryID     int64
	EntryNumber string
	CompanyID   int64
	Type        EntryType
	ProductIDs  []int64
	ApprovedAt  time.Time
}
