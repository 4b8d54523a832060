package wire

// Envelope is the minimal decode target used to pick the concrete message
// type out of an incoming frame.
type Envelope struct {
	Type MessageType `json:"type"`
}

// Hello is the first frame a worker must send after connecting. WorkerID is
// optional; the coordinator answers with the canonical id in HelloAck.
type Hello struct {
	Type      MessageType    `json:"type"`
	WorkerID  string         `json:"worker_id,omitempty"`
	OwnerID   string         `json:"owner_id,omitempty"`
	AuthToken string         `json:"auth_token,omitempty"`
	Caps      map[string]any `json:"caps,omitempty"`
}

// Heartbeat carries no payload beyond the type tag.
type Heartbeat struct {
	Type MessageType `json:"type"`
}

// JobStarted tells the coordinator the worker began executing a job.
type JobStarted struct {
	Type  MessageType `json:"type"`
	JobID string      `json:"job_id"`
}

// JobLog is a chunk of live output. The coordinator acknowledges receipt but
// does not persist it.
type JobLog struct {
	Type   MessageType `json:"type"`
	JobID  string      `json:"job_id"`
	Stream string      `json:"stream"`
	Chunk  string      `json:"chunk"`
}

// JobResult is the terminal frame for a job execution. DurationSeconds is
// optional; when absent the coordinator bills the minimum cost.
type JobResult struct {
	Type            MessageType `json:"type"`
	JobID           string      `json:"job_id"`
	ExitCode        int         `json:"exit_code"`
	Stdout          string      `json:"stdout"`
	Stderr          string      `json:"stderr"`
	DurationSeconds *float64    `json:"duration_seconds,omitempty"`
}

// HelloAck confirms registration and tells the worker its canonical id.
type HelloAck struct {
	Type     MessageType `json:"type"`
	WorkerID string      `json:"worker_id"`
}

// AuthError precedes a close with CloseAuthFailure.
type AuthError struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// JobPayload carries the code to execute.
type JobPayload struct {
	Script string `json:"script"`
}

// JobLimits are the execution limits the worker must enforce. TimeoutS is the
// per-job timeout the submitter paid a reserve for.
type JobLimits struct {
	CPUs     int    `json:"cpus"`
	Memory   string `json:"memory"`
	TimeoutS int    `json:"timeout_s"`
}

// AssignedJob is the job description inside an AssignJob frame. Kind is the
// language tag.
type AssignedJob struct {
	JobID   string     `json:"job_id"`
	Kind    string     `json:"kind"`
	Payload JobPayload `json:"payload"`
	Limits  JobLimits  `json:"limits"`
}

// AssignJob hands a queued job to an idle worker.
type AssignJob struct {
	Type MessageType `json:"type"`
	Job  AssignedJob `json:"job"`
}

func NewHelloAck(workerID string) HelloAck {
	return HelloAck{Type: MessageTypeHelloAck, WorkerID: workerID}
}

func NewAuthError(errMsg string) AuthError {
	return AuthError{Type: MessageTypeAuthError, Error: errMsg}
}

func NewAssignJob(job AssignedJob) AssignJob {
	return AssignJob{Type: MessageTypeAssignJob, Job: job}
}
