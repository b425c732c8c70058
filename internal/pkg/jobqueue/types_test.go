package jobqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTypeNames(t *testing.T) {
	assert.Equal(t, "reconcile_purchases", string(JobTypeReconcilePurchases))
	assert.Equal(t, "send_receipt", string(JobTypeSendReceipt))
}

func TestNewJob(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := newJob("job-1", JobTypeSendReceipt, map[string]interface{}{"a": 1}, now)

	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Zero(t, job.Attempts)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.StartedAt)
}

func TestJob_Lifecycle(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	backoff := 30 * time.Second

	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		wantRetry   bool
		wantStatus  JobStatus
		wantRetryAt time.Time
	}{
		{"first failure retries", 0, 4, true, JobStatusRetrying, start.Add(30 * time.Second)},
		{"backoff grows with attempts", 2, 4, true, JobStatusRetrying, start.Add(90 * time.Second)},
		{"last attempt fails for good", 3, 4, false, JobStatusFailed, time.Time{}},
		{"single attempt jobs never retry", 0, 1, false, JobStatusFailed, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Attempts: tt.attempts, MaxAttempts: tt.maxAttempts}
			job.begin(start)
			require.Equal(t, JobStatusProcessing, job.Status)
			require.Equal(t, tt.attempts+1, job.Attempts)

			retry := job.fail(errors.New("boom"), start, backoff)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.Equal(t, "boom", job.LastError)
			if tt.wantRetry {
				require.NotNil(t, job.RetryAt)
				assert.Equal(t, tt.wantRetryAt, *job.RetryAt)
				assert.Nil(t, job.FinishedAt)
			} else {
				assert.Nil(t, job.RetryAt)
				assert.NotNil(t, job.FinishedAt)
			}
		})
	}
}

func TestJob_SucceedClearsError(t *testing.T) {
	now := time.Now()
	job := &Job{MaxAttempts: 2, LastError: "earlier failure"}
	job.begin(now)
	job.succeed(now)

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.LastError)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, now, *job.FinishedAt)
}

func TestJob_BeginClearsRetryAt(t *testing.T) {
	now := time.Now()
	retryAt := now.Add(time.Minute)
	job := &Job{MaxAttempts: 3, Attempts: 1, Status: JobStatusRetrying, RetryAt: &retryAt}
	job.begin(now)
	assert.Nil(t, job.RetryAt)
	assert.Equal(t, 2, job.Attempts)
}

func TestSendReceiptJobPayloadFromMap(t *testing.T) {
	payload := SendReceiptJobPayload{PurchaseSessionID: "ps-1"}

	decoded, err := SendReceiptJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "ps-1", decoded.PurchaseSessionID)
}

func TestReconcilePurchasesJobPayloadFromMap(t *testing.T) {
	// Payloads come back from Redis through JSON, so numbers are float64.
	decoded, err := ReconcilePurchasesJobPayloadFromMap(map[string]interface{}{"older_than_minutes": float64(30)})
	require.NoError(t, err)
	assert.Equal(t, 30, decoded.OlderThanMinutes)

	_, err = ReconcilePurchasesJobPayloadFromMap(map[string]interface{}{"older_than_minutes": "soon"})
	assert.Error(t, err)
}
