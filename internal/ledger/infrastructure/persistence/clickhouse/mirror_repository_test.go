package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	driver.Conn
	query string
	args  []any
}

func (c *recordingConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	c.query = query
	c.args = args
	return emptyRows{}, nil
}

type emptyRows struct{ driver.Rows }

func (emptyRows) Next() bool   { return false }
func (emptyRows) Close() error { return nil }
func (emptyRows) Err() error   { return nil }

func TestDeltasByDayBucketsInReferenceTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	conn := &recordingConn{}
	repo := NewMirrorRepository(conn, ny)

	cutoff := time.Date(2024, 3, 3, 0, 0, 0, 0, ny)
	_, err = repo.DeltasByDay(context.Background(), "u1", cutoff)
	require.NoError(t, err)

	assert.Contains(t, conn.query, "toStartOfDay(ts, ?)",
		"day bucketing must carry an explicit timezone, never the server default")
	require.GreaterOrEqual(t, len(conn.args), 3)
	assert.Equal(t, "America/New_York", conn.args[0])
	assert.Equal(t, "u1", conn.args[1])
}

func TestNewMirrorRepositoryDefaultsToUTC(t *testing.T) {
	conn := &recordingConn{}
	repo := NewMirrorRepository(conn, nil)

	_, err := repo.DeltasByDay(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "UTC", conn.args[0])
}
