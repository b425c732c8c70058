package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType names the handler a job is dispatched to.
type JobType string

const (
	JobTypeReconcilePurchases JobType = "reconcile_purchases"
	JobTypeSendReceipt        JobType = "send_receipt"
)

// JobStatus is the lifecycle state stored with the job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the unit of background work kept in Redis as JSON.
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	LastError   string                 `json:"last_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	RetryAt     *time.Time             `json:"retry_at,omitempty"`
}

func newJob(id string, jobType JobType, payload map[string]interface{}, now time.Time) *Job {
	return &Job{
		ID:          id,
		Type:        jobType,
		Status:      JobStatusPending,
		Payload:     payload,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// begin records the start of an attempt.
func (j *Job) begin(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.StartedAt = &now
	j.RetryAt = nil
	j.UpdatedAt = now
}

func (j *Job) succeed(now time.Time) {
	j.Status = JobStatusCompleted
	j.LastError = ""
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// fail records err and reports whether another attempt is scheduled.
// backoff grows linearly with the number of attempts made.
func (j *Job) fail(err error, now time.Time, backoff time.Duration) bool {
	j.LastError = err.Error()
	j.UpdatedAt = now
	if j.Attempts >= j.MaxAttempts {
		j.Status = JobStatusFailed
		j.FinishedAt = &now
		j.RetryAt = nil
		return false
	}
	retryAt := now.Add(backoff * time.Duration(j.Attempts))
	j.Status = JobStatusRetrying
	j.RetryAt = &retryAt
	return true
}

// ReconcilePurchasesJobPayload optionally overrides the staleness threshold.
type ReconcilePurchasesJobPayload struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

func (p ReconcilePurchasesJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"older_than_minutes": p.OlderThanMinutes}
}

func ReconcilePurchasesJobPayloadFromMap(data map[string]interface{}) (*ReconcilePurchasesJobPayload, error) {
	var payload ReconcilePurchasesJobPayload
	return &payload, decodePayload(data, &payload)
}

// SendReceiptJobPayload names the completed purchase to confirm by email.
type SendReceiptJobPayload struct {
	PurchaseSessionID string `json:"purchase_session_id"`
}

func (p SendReceiptJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"purchase_session_id": p.PurchaseSessionID}
}

func SendReceiptJobPayloadFromMap(data map[string]interface{}) (*SendReceiptJobPayload, error) {
	var payload SendReceiptJobPayload
	return &payload, decodePayload(data, &payload)
}

// decodePayload round-trips through JSON; stored payloads carry float64 numbers.
func decodePayload(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
