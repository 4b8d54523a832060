package monitor

type MetricTag string

const (
	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration"
	HttpRequestDurationTag     MetricTag = "requests_duration_seconds"
	// Jobs:
	JobsSubmittedCounterTag MetricTag = "jobs_submitted_counter"
	JobsCompletedCounterTag MetricTag = "jobs_completed_counter"
	JobsRequeuedCounterTag  MetricTag = "jobs_requeued_counter"
	JobDurationSecondsTag   MetricTag = "job_duration_seconds"
	// Dispatch loop:
	DispatchAttemptsCounterTag MetricTag = "dispatch_attempts_counter"
	// Worker sessions:
	WorkerSessionsCounterTag MetricTag = "worker_sessions_counter"
)

// Function metric tags, registered at runtime against live callbacks rather
// than through the static maps.
const (
	QueueSizeTag                  MetricTag = "queue_size"
	ConnectedWorkersTag           MetricTag = "connected_workers"
	DBMaxOpenConnectionsTag       MetricTag = "db_max_open_connections"
	DBInUseConnectionsTag         MetricTag = "db_in_use_connections"
	DBIdleConnectionsTag          MetricTag = "db_idle_connections"
	DBWaitCountTotalTag           MetricTag = "db_wait_count_total"
	DBWaitDurationSecondsTotalTag MetricTag = "db_wait_duration_seconds_total"
)

func (m MetricTag) ListAll() []MetricTag {
	return []MetricTag{
		SuccessfulQueryDurationTag,
		FailureQueryDurationTag,
		HttpRequestDurationTag,
		JobsSubmittedCounterTag,
		JobsCompletedCounterTag,
		JobsRequeuedCounterTag,
		JobDurationSecondsTag,
		DispatchAttemptsCounterTag,
		WorkerSessionsCounterTag,
	}
}
