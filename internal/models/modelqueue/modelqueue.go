// Package modelqueue provides types for queueing pieces of data.

package modelqueue

import (
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
)

// CommissionQueueEntry is a referral commission waiting to be applied outside its deposit transaction.
type CommissionQueueEntry struct {
	Commission  modelstorage.CommissionEntry
	RetryCount  int
	LastChecked time.Time
}
