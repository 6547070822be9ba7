package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/weatherwd/internal/models"
)

// NotificationQueue is a thread-safe bounded queue between the bridge and the
// augmentation service. When full, the oldest notification is dropped: a
// stale archive interval is worth less than the latest one.
type NotificationQueue struct {
	notifications []models.Notification
	capacity      int
	mutex         sync.Mutex
	ready         chan struct{}
	stats         QueueStats
}

// QueueStats tracks queue usage statistics
type QueueStats struct {
	TotalPushed   int64
	TotalDropped  int64
	HighWaterMark int
	LastPushTime  time.Time
	LastDropTime  time.Time
}

// NewNotificationQueue creates a new queue with the given capacity.
func NewNotificationQueue(capacity int) *NotificationQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &NotificationQueue{
		notifications: make([]models.Notification, 0, capacity),
		capacity:      capacity,
		ready:         make(chan struct{}, capacity),
	}
}

// Push adds a notification. Returns false when the push displaced an older
// entry.
func (q *NotificationQueue) Push(n models.Notification) bool {
	q.mutex.Lock()

	dropped := false
	if len(q.notifications) >= q.capacity {
		q.notifications = q.notifications[1:]
		q.stats.TotalDropped++
		q.stats.LastDropTime = time.Now()
		dropped = true
	}
	q.notifications = append(q.notifications, n)
	q.stats.TotalPushed++
	q.stats.LastPushTime = time.Now()
	if len(q.notifications) > q.stats.HighWaterMark {
		q.stats.HighWaterMark = len(q.notifications)
	}
	q.mutex.Unlock()

	if !dropped {
		q.ready <- struct{}{}
	}
	return !dropped
}

// Ready signals once per queued notification. Receive from it, then call Pop.
func (q *NotificationQueue) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes and returns the oldest notification. ok is false when empty.
func (q *NotificationQueue) Pop() (models.Notification, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.notifications) == 0 {
		return models.Notification{}, false
	}
	n := q.notifications[0]
	q.notifications = q.notifications[1:]
	return n, true
}

// Size returns the current number of queued notifications.
func (q *NotificationQueue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.notifications)
}

// Stats returns a copy of current queue statistics.
func (q *NotificationQueue) Stats() QueueStats {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.stats
}

// String returns a human-readable representation of queue state.
func (q *NotificationQueue) String() string {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return fmt.Sprintf("Queue[%d/%d, dropped: %d]", len(q.notifications), q.capacity, q.stats.TotalDropped)
}
