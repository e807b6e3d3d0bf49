package application

import (
	"container/list"
	"sync"
	"time"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

const snapshotDateLayout = "2006-01-02"

// SnapshotCache memoizes (user, date) snapshots. Entries are immutable
// historical facts so they carry no TTL: they stay correct until a ledger
// mutation explicitly invalidates them. The cache is bounded; on overflow the
// oldest-inserted entry is evicted, since eviction order is not a
// correctness property.
//
// Every instant is normalized to its calendar day in the reference timezone
// before keying, so a lookup and an invalidation address the same entry no
// matter which zone the caller's timestamp carries.
type SnapshotCache struct {
	mu       sync.Mutex
	loc      *time.Location
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	byUser   map[string]map[string]struct{}
}

type snapshotEntry struct {
	key      string
	userID   string
	date     string
	snapshot *domain.Snapshot
}

// NewSnapshotCache builds a bounded snapshot cache keyed on calendar days in
// the given reference timezone.
func NewSnapshotCache(capacity int, loc *time.Location) *SnapshotCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SnapshotCache{
		loc:      loc,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (c *SnapshotCache) snapshotKey(userID string, date time.Time) (string, string) {
	d := date.In(c.loc).Format(snapshotDateLayout)
	return userID + "|" + d, d
}

// Get returns the cached snapshot for (user, date), if any.
func (c *SnapshotCache) Get(userID string, date time.Time) (*domain.Snapshot, bool) {
	key, _ := c.snapshotKey(userID, date)
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*snapshotEntry).snapshot, true
}

// Set stores a snapshot, evicting the oldest entry when full.
func (c *SnapshotCache) Set(userID string, date time.Time, s *domain.Snapshot) {
	key, day := c.snapshotKey(userID, date)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*snapshotEntry).snapshot = s
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.removeLocked(oldest.Value.(*snapshotEntry))
		}
	}

	entry := &snapshotEntry{key: key, userID: userID, date: day, snapshot: s}
	c.entries[key] = c.order.PushBack(entry)
	dates, ok := c.byUser[userID]
	if !ok {
		dates = make(map[string]struct{})
		c.byUser[userID] = dates
	}
	dates[day] = struct{}{}
}

// Invalidate removes exactly the (user, date) entry.
func (c *SnapshotCache) Invalidate(userID string, date time.Time) {
	key, _ := c.snapshotKey(userID, date)
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el.Value.(*snapshotEntry))
	}
}

// InvalidateUser removes every entry for the user.
func (c *SnapshotCache) InvalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for day := range c.byUser[userID] {
		if el, ok := c.entries[userID+"|"+day]; ok {
			c.removeLocked(el.Value.(*snapshotEntry))
		}
	}
}

// InvalidateFrom removes the user's entries for every cached date at or after
// the event's date: later snapshots depend on the same fold, so a write at
// date D poisons D and everything cached beyond it.
func (c *SnapshotCache) InvalidateFrom(userID string, date time.Time) {
	day := date.In(c.loc).Format(snapshotDateLayout)
	c.mu.Lock()
	defer c.mu.Unlock()
	for cached := range c.byUser[userID] {
		if cached < day {
			continue
		}
		if el, ok := c.entries[userID+"|"+cached]; ok {
			c.removeLocked(el.Value.(*snapshotEntry))
		}
	}
}

// Len reports the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *SnapshotCache) removeLocked(entry *snapshotEntry) {
	if el, ok := c.entries[entry.key]; ok {
		c.order.Remove(el)
		delete(c.entries, entry.key)
	}
	if dates, ok := c.byUser[entry.userID]; ok {
		delete(dates, entry.date)
		if len(dates) == 0 {
			delete(c.byUser, entry.userID)
		}
	}
}
