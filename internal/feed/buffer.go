package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/weatherwd/internal/models"
)

// RecordBuffer is a thread-safe bounded buffer of archive records awaiting
// transmission. A replay must not lose records, so a full buffer rejects the
// push and the reader backs off rather than dropping anything.
type RecordBuffer struct {
	records  []*models.ArchiveMessage
	capacity int
	mutex    sync.RWMutex
	stats    BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64
	TotalRejected int64
	HighWaterMark int
	LastPushTime  time.Time
}

// NewRecordBuffer creates a new record buffer with given capacity
func NewRecordBuffer(capacity int) *RecordBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RecordBuffer{
		records:  make([]*models.ArchiveMessage, 0, capacity),
		capacity: capacity,
	}
}

// Push adds a record to the buffer. Returns false when the buffer is full;
// the caller retries after the sender drains.
func (rb *RecordBuffer) Push(record *models.ArchiveMessage) bool {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if len(rb.records) >= rb.capacity {
		rb.stats.TotalRejected++
		return false
	}
	rb.records = append(rb.records, record)
	rb.stats.TotalPushed++
	rb.stats.LastPushTime = time.Now()

	if len(rb.records) > rb.stats.HighWaterMark {
		rb.stats.HighWaterMark = len(rb.records)
	}

	return true
}

// Peek returns the oldest record without removing it, or nil when empty.
// The sender peeks, transmits, and commits only after the ack arrives, so a
// record in flight across a disconnect is retransmitted rather than lost.
func (rb *RecordBuffer) Peek() *models.ArchiveMessage {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if len(rb.records) == 0 {
		return nil
	}
	return rb.records[0]
}

// Commit removes the oldest record after it has been acknowledged
func (rb *RecordBuffer) Commit() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	if len(rb.records) > 0 {
		rb.records = rb.records[1:]
	}
}

// Size returns the current number of records in the buffer
func (rb *RecordBuffer) Size() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.records)
}

// IsEmpty returns true if buffer has no records
func (rb *RecordBuffer) IsEmpty() bool {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return len(rb.records) == 0
}

// Capacity returns the maximum capacity of the buffer
func (rb *RecordBuffer) Capacity() int {
	// No lock needed, capacity doesn't change
	return rb.capacity
}

// Stats returns a copy of current buffer statistics
func (rb *RecordBuffer) Stats() BufferStats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.stats
}

// String returns a human-readable representation of buffer state
func (rb *RecordBuffer) String() string {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	return fmt.Sprintf("Buffer[%d/%d, rejected: %d]",
		len(rb.records),
		rb.capacity,
		rb.stats.TotalRejected,
	)
}
