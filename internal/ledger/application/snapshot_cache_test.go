package application

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
)

func snapAt(d int) (time.Time, *domain.Snapshot) {
	date := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
	return date, &domain.Snapshot{UserID: "u1", Date: date}
}

func TestSnapshotCacheSetGet(t *testing.T) {
	c := NewSnapshotCache(4, time.UTC)
	date, snap := snapAt(1)

	_, ok := c.Get("u1", date)
	assert.False(t, ok)

	c.Set("u1", date, snap)
	got, ok := c.Get("u1", date)
	require.True(t, ok)
	assert.Equal(t, snap, got)

	// Any time on the same calendar day addresses the same entry.
	_, ok = c.Get("u1", date.Add(15*time.Hour))
	assert.True(t, ok)
}

func TestSnapshotCacheExactInvalidation(t *testing.T) {
	c := NewSnapshotCache(4, time.UTC)
	d1, s1 := snapAt(1)
	d2, s2 := snapAt(2)
	c.Set("u1", d1, s1)
	c.Set("u1", d2, s2)

	c.Invalidate("u1", d1)
	_, ok := c.Get("u1", d1)
	assert.False(t, ok)
	_, ok = c.Get("u1", d2)
	assert.True(t, ok)
}

func TestSnapshotCacheUserInvalidation(t *testing.T) {
	c := NewSnapshotCache(8, time.UTC)
	d1, s1 := snapAt(1)
	c.Set("u1", d1, s1)
	c.Set("u2", d1, &domain.Snapshot{UserID: "u2"})

	c.InvalidateUser("u1")
	_, ok := c.Get("u1", d1)
	assert.False(t, ok)
	_, ok = c.Get("u2", d1)
	assert.True(t, ok, "other users untouched")
}

func TestSnapshotCacheInvalidateFrom(t *testing.T) {
	c := NewSnapshotCache(8, time.UTC)
	for d := 1; d <= 5; d++ {
		date, snap := snapAt(d)
		c.Set("u1", date, snap)
	}

	cutoff, _ := snapAt(3)
	c.InvalidateFrom("u1", cutoff)

	for d := 1; d <= 2; d++ {
		date, _ := snapAt(d)
		_, ok := c.Get("u1", date)
		assert.True(t, ok, "day %d predates the write", d)
	}
	for d := 3; d <= 5; d++ {
		date, _ := snapAt(d)
		_, ok := c.Get("u1", date)
		assert.False(t, ok, "day %d is at or after the write", d)
	}
}

func TestSnapshotCacheKeysDaysInReferenceTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	c := NewSnapshotCache(8, ny)

	dayOne := time.Date(2024, 3, 1, 0, 0, 0, 0, ny)
	c.Set("u1", dayOne, &domain.Snapshot{UserID: "u1", Date: dayOne})

	// 02:00 UTC on Mar 2 is still Mar 1 in New York.
	lateEvening := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	_, ok := c.Get("u1", lateEvening)
	assert.True(t, ok, "a UTC instant on the same reference day addresses the entry")

	c.InvalidateFrom("u1", lateEvening)
	_, ok = c.Get("u1", dayOne)
	assert.False(t, ok, "invalidation with a foreign-zone timestamp reaches the reference day")
}

func TestSnapshotCacheEvictsOldestAtCapacity(t *testing.T) {
	c := NewSnapshotCache(3, time.UTC)
	for d := 1; d <= 4; d++ {
		date, snap := snapAt(d)
		c.Set("u1", date, snap)
	}

	assert.Equal(t, 3, c.Len())
	first, _ := snapAt(1)
	_, ok := c.Get("u1", first)
	assert.False(t, ok, "oldest insertion evicted")
	last, _ := snapAt(4)
	_, ok = c.Get("u1", last)
	assert.True(t, ok)
}

func TestSnapshotCacheOverwriteDoesNotGrow(t *testing.T) {
	c := NewSnapshotCache(2, time.UTC)
	date, snap := snapAt(1)
	c.Set("u1", date, snap)

	replacement := &domain.Snapshot{UserID: "u1", Date: date, TotalValue: dec("42")}
	c.Set("u1", date, replacement)

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("u1", date)
	require.True(t, ok)
	assert.True(t, got.TotalValue.Equal(dec("42")))
}

func TestSnapshotCacheManyUsers(t *testing.T) {
	c := NewSnapshotCache(64, time.UTC)
	date, _ := snapAt(1)
	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("user-%d", i)
		c.Set(user, date, &domain.Snapshot{UserID: user, Date: date})
	}
	assert.Equal(t, 10, c.Len())

	c.InvalidateUser("user-3")
	assert.Equal(t, 9, c.Len())
}
