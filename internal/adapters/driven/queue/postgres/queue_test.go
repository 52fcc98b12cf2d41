package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

func TestPollWait(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 250*time.Millisecond, pollWait(now, now.Add(time.Second), 250*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, pollWait(now, now.Add(100*time.Millisecond), 250*time.Millisecond))
	assert.LessOrEqual(t, pollWait(now, now.Add(-time.Second), 250*time.Millisecond), time.Duration(0))
}

// fakeRow fills Scan destinations from a fixed list of values.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *domain.TaskType:
			*p = r.values[i].(domain.TaskType)
		case *domain.TaskStatus:
			*p = r.values[i].(domain.TaskStatus)
		case *int:
			*p = r.values[i].(int)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			if s, ok := d.(interface{ Scan(any) error }); ok {
				if err := s.Scan(r.values[i]); err != nil {
					return err
				}
				continue
			}
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestScanTask(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)

	row := fakeRow{values: []any{
		"task-1", domain.TaskTypeProcessDocument, "owner-1", []byte(`{"file_id":"file-1"}`),
		domain.TaskStatusProcessing, 0, 1, 3, "", created, started,
		started, nil, created,
	}}

	task, err := scanTask(row)
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, "owner-1", task.OwnerID)
	assert.Equal(t, "file-1", task.Payload["file_id"])
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	require.NotNil(t, task.StartedAt)
	assert.True(t, task.StartedAt.Equal(started))
	assert.Nil(t, task.CompletedAt)
}

func TestScanTask_PropagatesRowError(t *testing.T) {
	_, err := scanTask(fakeRow{err: errors.New("boom")})
	assert.EqualError(t, err, "boom")
}
