// Package wire defines the typed messages exchanged between the scheduler
// backend and remote executors, and the small set of driver-local events
// that share the Coordinator's event queue with them.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// TaskState mirrors the task lifecycle states a StatusUpdate can report.
type TaskState string

const (
	TaskLaunching TaskState = "LAUNCHING"
	TaskRunning   TaskState = "RUNNING"
	TaskFinished  TaskState = "FINISHED"
	TaskFailed    TaskState = "FAILED"
	TaskKilled    TaskState = "KILLED"
	TaskLost      TaskState = "LOST"
)

// IsFinished reports whether state is one of the four terminal states.
func (s TaskState) IsFinished() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return true
	default:
		return false
	}
}

// HostPort is the executor's advertised host/port, validated on arrival so
// the Coordinator never has to special-case a malformed value downstream.
type HostPort struct {
	Host string `validate:"required"`
	Port int    `validate:"required,gt=0,lte=65535"`
}

func (h HostPort) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// ParseHostPort splits and validates a "host:port" string the way
// RegisterExecutor requires: non-empty host, numeric port.
func ParseHostPort(s string) (HostPort, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return HostPort{}, fmt.Errorf("wire: malformed hostPort %q: missing ':'", s)
	}
	host, portStr := s[:idx], s[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return HostPort{}, fmt.Errorf("wire: malformed hostPort %q: non-numeric port: %w", s, err)
	}
	hp := HostPort{Host: host, Port: port}
	if err := validate.Struct(hp); err != nil {
		return HostPort{}, fmt.Errorf("wire: invalid hostPort %q: %w", s, err)
	}
	return hp, nil
}

// RegisterExecutor is the inbound announcement an executor sends once, on
// connect, offering its compute slots.
type RegisterExecutor struct {
	ExecutorID string `validate:"required"`
	HostPort   string `validate:"required"`
	Cores      int    `validate:"gte=0"`
}

// Validate checks struct tags and, separately, that HostPort parses.
func (m RegisterExecutor) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("wire: invalid RegisterExecutor: %w", err)
	}
	if _, err := ParseHostPort(m.HostPort); err != nil {
		return err
	}
	return nil
}

// RegisteredExecutor is the success reply to RegisterExecutor, carrying the
// process-wide <prefix>.* configuration snapshot the executor should adopt.
type RegisteredExecutor struct {
	Properties map[string]string
}

// RegisterExecutorFailed is the failure reply to RegisterExecutor.
type RegisterExecutorFailed struct {
	Reason string
}

// StatusUpdate is a progress report for a previously-launched task.
type StatusUpdate struct {
	ExecutorID string
	TaskID     string
	State      TaskState
	Data       []byte
}

// LaunchTask is the fire-and-forget launch command sent to an executor.
type LaunchTask struct {
	Task TaskDescription
}

// TaskDescription is an opaque unit of work routed to a specific executor.
// It has no persistent identity beyond the Launch Pump: it is discarded
// after send, successful or not.
type TaskDescription struct {
	TaskID     string
	ExecutorID string
	Payload    []byte
}

// WorkerOffer declares that coreCount cores on a specific executor are
// available for the cluster scheduler to place work on.
type WorkerOffer struct {
	ExecutorID string
	HostPort   string
	Cores      int
}

// ReviveOffers requests that offers be regenerated for every registered
// executor, including those with zero free cores.
type ReviveOffers struct{}

// StopDriver is a graceful shutdown request; the sender blocks for an
// acknowledgement.
type StopDriver struct {
	Ack chan struct{}
}

// RemoveExecutor is an explicit removal request from a higher layer.
type RemoveExecutor struct {
	ExecutorID string
	Reason     string
	Ack        chan error
}

// FreeCores bulk-restores cores across executors, used when an offer is
// declined or a task never actually launches.
type FreeCores struct {
	Delta map[string]int
}

// PeerTerminated reports that the remote actor identified by handle exited
// cleanly.
type PeerTerminated struct {
	Handle PeerHandle
}

// PeerDisconnected reports that the transport to addr closed unexpectedly.
type PeerDisconnected struct {
	Address string
}

// PeerShutdown reports that the transport to addr was shut down locally.
type PeerShutdown struct {
	Address string
}

// PeerHandle is the opaque identifier the transport hands the backend to
// address a connected executor. It carries only a location, never a
// reference back to the Coordinator, so the two sides cannot form a
// reference cycle.
type PeerHandle interface {
	// Address is the remote address this handle was accepted from.
	Address() string
	// Send delivers an outbound message to the peer. Implementations must
	// be safe to call while the registry's shared lock is held.
	Send(msg any) error
}
