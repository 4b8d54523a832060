package monitor

type HttpRequestLabels struct {
	Status string
	Route  string
	Method string
}

type DBQueryLabels struct {
	QueryType string
}

// DispatchOutcome labels one pass of the pairing loop over a single job.
type DispatchOutcome string

const (
	DispatchOutcomeAssigned   DispatchOutcome = "assigned"
	DispatchOutcomeNoWorker   DispatchOutcome = "no_worker"
	DispatchOutcomeStaleJob   DispatchOutcome = "stale_job"
	DispatchOutcomeCASLost    DispatchOutcome = "cas_lost"
	DispatchOutcomeSendFailed DispatchOutcome = "send_failed"
)

type DispatchLabels struct {
	Outcome DispatchOutcome
}

func (d DispatchLabels) ToMap() map[string]string {
	return map[string]string{
		"outcome": string(d.Outcome),
	}
}

type JobCompletionLabels struct {
	Status   string
	Language string
}

func (j JobCompletionLabels) ToMap() map[string]string {
	return map[string]string{
		"status":   j.Status,
		"language": j.Language,
	}
}

// RequeueReason labels why a running job went back to the queue.
type RequeueReason string

const (
	RequeueReasonDisconnect RequeueReason = "disconnect"
	RequeueReasonWatchdog   RequeueReason = "watchdog"
	RequeueReasonSendFailed RequeueReason = "send_failed"
)

type RequeueLabels struct {
	Reason RequeueReason
}

func (r RequeueLabels) ToMap() map[string]string {
	return map[string]string{
		"reason": string(r.Reason),
	}
}

// SessionEvent labels worker session lifecycle counters.
type SessionEvent string

const (
	SessionEventConnected  SessionEvent = "connected"
	SessionEventClosed     SessionEvent = "closed"
	SessionEventAuthFailed SessionEvent = "auth_failed"
)

type SessionLabels struct {
	Event SessionEvent
}

func (s SessionLabels) ToMap() map[string]string {
	return map[string]string{
		"event": string(s.Event),
	}
}
