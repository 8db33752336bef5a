package transport

import (
	"fmt"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

// Envelope is the single message shape carried over the Connect stream.
// Exactly one of the payload fields is set per envelope; Kind disambiguates
// which, since the JSON codec has no protobuf oneof to lean on.
type Envelope struct {
	Kind string `json:"kind"`

	Register       *wire.RegisterExecutor       `json:"register,omitempty"`
	Registered     *wire.RegisteredExecutor     `json:"registered,omitempty"`
	RegisterFailed *wire.RegisterExecutorFailed `json:"registerFailed,omitempty"`
	StatusUpdate   *wire.StatusUpdate           `json:"statusUpdate,omitempty"`
	LaunchTask     *wire.LaunchTask             `json:"launchTask,omitempty"`
}

const (
	kindRegister       = "register"
	kindRegistered     = "registered"
	kindRegisterFailed = "registerFailed"
	kindStatusUpdate   = "statusUpdate"
	kindLaunchTask     = "launchTask"
)

// Encode wraps a wire message in its Envelope.
func Encode(msg any) (*Envelope, error) {
	switch m := msg.(type) {
	case wire.RegisterExecutor:
		return &Envelope{Kind: kindRegister, Register: &m}, nil
	case wire.RegisteredExecutor:
		return &Envelope{Kind: kindRegistered, Registered: &m}, nil
	case wire.RegisterExecutorFailed:
		return &Envelope{Kind: kindRegisterFailed, RegisterFailed: &m}, nil
	case wire.StatusUpdate:
		return &Envelope{Kind: kindStatusUpdate, StatusUpdate: &m}, nil
	case wire.LaunchTask:
		return &Envelope{Kind: kindLaunchTask, LaunchTask: &m}, nil
	default:
		return nil, fmt.Errorf("transport: cannot encode message of type %T", msg)
	}
}

// Decode unwraps an Envelope back into its concrete wire message.
func Decode(env *Envelope) (any, error) {
	switch env.Kind {
	case kindRegister:
		if env.Register == nil {
			return nil, fmt.Errorf("transport: envelope kind %q missing payload", env.Kind)
		}
		return *env.Register, nil
	case kindRegistered:
		if env.Registered == nil {
			return nil, fmt.Errorf("transport: envelope kind %q missing payload", env.Kind)
		}
		return *env.Registered, nil
	case kindRegisterFailed:
		if env.RegisterFailed == nil {
			return nil, fmt.Errorf("transport: envelope kind %q missing payload", env.Kind)
		}
		return *env.RegisterFailed, nil
	case kindStatusUpdate:
		if env.StatusUpdate == nil {
			return nil, fmt.Errorf("transport: envelope kind %q missing payload", env.Kind)
		}
		return *env.StatusUpdate, nil
	case kindLaunchTask:
		if env.LaunchTask == nil {
			return nil, fmt.Errorf("transport: envelope kind %q missing payload", env.Kind)
		}
		return *env.LaunchTask, nil
	default:
		return nil, fmt.Errorf("transport: unknown envelope kind %q", env.Kind)
	}
}
