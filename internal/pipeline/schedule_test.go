package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule(" 0 6 * * 1-5 ")
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC), sched.Next(friday), "skips the weekend")

	for _, spec := range []string{"", "every day", "0 6 * *", "61 * * * *"} {
		_, err := ParseSchedule(spec)
		assert.Error(t, err, spec)
	}
}

func TestSchedule_InvalidSpec(t *testing.T) {
	err := Schedule(context.Background(), "nope", func(context.Context) {})
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestRunSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	var waits []time.Duration
	wait := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		clock = clock.Add(d)
		return ctx.Err()
	}
	runs := 0
	job := func(context.Context) {
		runs++
		if runs == 2 {
			cancel()
		}
	}

	require.NoError(t, runSchedule(ctx, sched, func() time.Time { return clock }, wait, job))
	assert.Equal(t, 2, runs)
	assert.Equal(t, []time.Duration{30 * time.Minute, time.Hour, time.Hour}, waits)
}
