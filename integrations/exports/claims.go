package exports

import (
	"time"

	"github.com/holiman/uint256"

	"nftstake/native/nftstake"
)

// ClaimReceipt is one settled claim as recorded by the event journal.
type ClaimReceipt struct {
	ID        string
	Holder    nftstake.HolderID
	Points    uint32
	Amount    *uint256.Int
	ClaimedAt time.Time
}

func (r ClaimReceipt) amount() string {
	if r.Amount == nil {
		return "0"
	}
	return r.Amount.Dec()
}

func (r ClaimReceipt) claimedAt() string {
	ts := r.ClaimedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}
