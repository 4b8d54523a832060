// Package wire defines the JSON message schema exchanged between the
// coordinator and workers over the persistent worker channel. Worker client
// implementations are expected to import this package rather than redeclare
// the frame layout.
package wire

import (
	"slices"
	"time"
)

// MessageType is the discriminator carried in every frame's "type" field.
type MessageType string

const (
	// Worker → coordinator.
	MessageTypeHello      MessageType = "hello"
	MessageTypeHeartbeat  MessageType = "hb"
	MessageTypeJobStarted MessageType = "job_started"
	MessageTypeJobLog     MessageType = "job_log"
	MessageTypeJobResult  MessageType = "job_result"

	// Coordinator → worker.
	MessageTypeHelloAck  MessageType = "hello_ack"
	MessageTypeAuthError MessageType = "auth_error"
	MessageTypeAssignJob MessageType = "assign_job"
)

// FromWorker reports whether the message type is one a worker is allowed to
// send. Unknown types return false and are ignored by the coordinator for
// forward compatibility.
func (t MessageType) FromWorker() bool {
	return slices.Contains([]MessageType{
		MessageTypeHello,
		MessageTypeHeartbeat,
		MessageTypeJobStarted,
		MessageTypeJobLog,
		MessageTypeJobResult,
	}, t)
}

const (
	// MaxFrameSize bounds a single frame in either direction.
	MaxFrameSize int64 = 10 << 20

	// MaxOutputSize bounds each of stdout and stderr in a job_result.
	MaxOutputSize = 10 << 20

	// PingInterval is how often the coordinator pings an idle channel, and
	// PongWait how long it waits for the answer before declaring the worker
	// gone.
	PingInterval = 20 * time.Second
	PongWait     = 20 * time.Second
)

// Close codes in the application range of the channel protocol.
const (
	CloseAuthFailure = 4401
	CloseUnknownPath = 4404
)

// Streams named in job_log frames.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)
