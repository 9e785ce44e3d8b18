package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compliance-reviewer/internal/db"
	"github.com/jonathan/compliance-reviewer/internal/notify"
	"github.com/jonathan/compliance-reviewer/internal/storage"
)

type recordingNotifier struct {
	summaries []notify.Summary
}

func (n *recordingNotifier) PostBatchSummary(_ context.Context, s notify.Summary) error {
	n.summaries = append(n.summaries, s)
	return nil
}

type recordingSleeper struct {
	waits  []time.Duration
	cancel context.CancelFunc
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	if s.cancel != nil {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

const otherApplication = "========== PAGE 1 ==========\n" +
	"[TEXT] HRSA-26-004 service area application, second submission.\n"

func TestRunBatch(t *testing.T) {
	client := &fakeClient{replies: []string{partialReply, partialReply}}
	r := newTestRunner(client)
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	sleeper := &recordingSleeper{}
	notifier := &recordingNotifier{}
	r.Storage = store
	r.Notifier = notifier
	r.Delay = 30 * time.Second
	r.Sleep = sleeper.sleep

	rep, err := r.RunBatch(context.Background(), []Input{
		{ApplicationID: "APP-1", Text: applicationText, Manual: manualEntries()},
		{ApplicationID: "APP-2"},
		{ApplicationID: "APP-3", Text: otherApplication},
	})
	require.NoError(t, err)

	assert.Equal(t, db.RunKindBatch, rep.Kind)
	require.Len(t, rep.Applications, 3)
	assert.Equal(t, 1, rep.Failed, "a failed application does not stop the batch")
	assert.Contains(t, rep.Applications[1].Error, "needs a path or text")
	require.Error(t, rep.Err())
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, sleeper.waits, "delay only between applications")
	assert.Equal(t, 2, client.calls)

	require.NotNil(t, rep.Aggregate)
	assert.Equal(t, 1, rep.Aggregate.Applications, "only applications with a manual review are aggregated")
	assert.Equal(t, 50.0, rep.Aggregate.PooledSuccessRatePercent)

	assert.Equal(t, []string{
		storage.ReportKey(rep.RunID, FileValidation),
		storage.ReportKey(rep.RunID, FileComparison),
		storage.ReportKey(rep.RunID, FileSummary),
	}, rep.ReportKeys)

	rc, err := store.Get(context.Background(), storage.ReportKey(rep.RunID, FileSummary))
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	var stored struct {
		RunID        string `json:"runId"`
		Failed       int    `json:"failed"`
		Applications []struct {
			ApplicationID string `json:"applicationId"`
		} `json:"applications"`
	}
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, rep.RunID.String(), stored.RunID)
	assert.Equal(t, 1, stored.Failed)
	assert.Len(t, stored.Applications, 3)

	require.Len(t, notifier.summaries, 1)
	s := notifier.summaries[0]
	assert.Equal(t, 3, s.Applications)
	assert.Equal(t, 1, s.Failed)
	assert.Len(t, s.Failures, 1)
	assert.Equal(t, rep.ReportKeys, s.ReportKeys)
}

func TestRunBatch_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{replies: []string{partialReply, partialReply}}
	r := newTestRunner(client)
	sleeper := &recordingSleeper{cancel: cancel}
	r.Delay = time.Minute
	r.Sleep = sleeper.sleep

	rep, err := r.RunBatch(ctx, []Input{
		{ApplicationID: "APP-1", Text: applicationText},
		{ApplicationID: "APP-2", Text: otherApplication},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "after 1 of 2 applications")
	assert.Len(t, rep.Applications, 1)
	assert.Equal(t, 1, client.calls)
}

func TestRunBatch_NoInputs(t *testing.T) {
	r := newTestRunner(&fakeClient{})
	rep, err := r.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Applications)
	assert.Nil(t, rep.Aggregate)
	assert.NoError(t, rep.Err())
}

func TestWaitContext(t *testing.T) {
	assert.NoError(t, waitContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitContext(ctx, time.Hour), context.Canceled)
}
