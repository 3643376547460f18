package schema

// SystemWorkerFailureTable represents the 'system.worker_failure' table: the
// dead-letter store a queue [Manager] writes to when a job exhausts its
// retries or fails permanently.
type SystemWorkerFailureTable struct {
	Table     string
	ID        string
	Queue     string
	JobID     string
	Payload   string
	Error     string
	Attempts  string
	CreatedAt string
}

var SystemWorkerFailure = SystemWorkerFailureTable{
	Table:     "system.worker_failure",
	ID:        "id",
	Queue:     "queue",
	JobID:     "jobid",
	Payload:   "payload",
	Error:     "error",
	Attempts:  "attempts",
	CreatedAt: "createdat",
}

func (t SystemWorkerFailureTable) Columns() []string {
	return []string{t.ID, t.Queue, t.JobID, t.Payload, t.Error, t.Attempts, t.CreatedAt}
}
