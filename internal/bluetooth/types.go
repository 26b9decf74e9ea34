// Package bluetooth reconciles headset connection events with audio routing
// requests into a single view of whether a Bluetooth audio path is active.
//
// Platform notifications arrive through a ProfileGateway subscription and are
// handled by a Router, which runs at most one EnableJob and one DisableJob at a
// time. Jobs retry their routing request until the platform confirms the new
// state or the job's deadline passes. A Controller owns the subscription and
// exposes the start/stop/activate/deactivate lifecycle.
package bluetooth

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Controller.Start when already started.
	ErrAlreadyStarted = errors.New("bluetooth: controller already started")
	// ErrNotStarted is returned by Activate/Deactivate while stopped.
	ErrNotStarted = errors.New("bluetooth: controller not started")
	// ErrRoutingTimeout is reported to the listener when a job exhausts its budget.
	ErrRoutingTimeout = errors.New("bluetooth: routing attempt timed out")
	// ErrGatewayUnavailable wraps failures to open the profile or routing subsystem.
	ErrGatewayUnavailable = errors.New("bluetooth: gateway unavailable")
	// ErrSuperseded is the outcome of a job cancelled by a newer one. It is
	// never passed to the listener.
	ErrSuperseded = errors.New("bluetooth: routing job superseded")
	// ErrJobStarted is returned when Run is called on a job more than once.
	ErrJobStarted = errors.New("bluetooth: routing job already started")
	// ErrNoEndpoint is returned by routing gateways with no device selected.
	ErrNoEndpoint = errors.New("bluetooth: no routing endpoint selected")
)

// Device is a headset as observed on the profile channel.
type Device struct {
	ID   string
	Name string
}

func (d Device) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// EventKind identifies a platform notification.
type EventKind int

const (
	DeviceConnected EventKind = iota + 1
	DeviceDisconnected
	AudioPathActive
	AudioPathInactive
)

func (k EventKind) String() string {
	switch k {
	case DeviceConnected:
		return "device-connected"
	case DeviceDisconnected:
		return "device-disconnected"
	case AudioPathActive:
		return "audio-path-active"
	case AudioPathInactive:
		return "audio-path-inactive"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a platform notification. Audio path events carry only the device
// address, or a zero Device when the platform does not report one.
type Event struct {
	Kind   EventKind
	Device Device
}

// Direction is the routing state a job drives towards.
type Direction int

const (
	Enabled Direction = iota + 1
	Disabled
)

func (d Direction) String() string {
	switch d {
	case Enabled:
		return "enable"
	case Disabled:
		return "disable"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Outcome is how a routing job ended.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeSuperseded Outcome = "superseded"
)

// SubscriptionHandle identifies an event subscription on a ProfileGateway.
type SubscriptionHandle string

// ProfileGateway is the headset profile side of the platform.
type ProfileGateway interface {
	OpenProxy() error
	CloseProxy() error
	// ConnectedDevices lists headsets connected right now.
	ConnectedDevices() ([]Device, error)
	// Subscribe delivers events to h serially, in platform order.
	Subscribe(h func(Event)) (SubscriptionHandle, error)
	Unsubscribe(SubscriptionHandle) error
}

// RoutingGateway is the audio routing side of the platform. Requests are
// fire-and-forget: confirmation arrives as AudioPathActive/Inactive events or
// through IsActive.
type RoutingGateway interface {
	RequestEnable() error
	RequestDisable() error
	IsActive() bool
	AcquireFocus() error
	ReleaseFocus() error
}

// EndpointSelector is implemented by routing gateways that route to a
// specific device. The router calls it whenever the preferred device changes.
type EndpointSelector interface {
	SelectEndpoint(d Device, ok bool)
}

// Listener receives device and routing notifications.
type Listener interface {
	OnDeviceConnected(d Device)
	OnDeviceDisconnected(d Device)
	OnRoutingActivated()
	OnRoutingFailed(err error)
}

// Recorder observes routing job lifecycles.
type Recorder interface {
	JobStarted(dir Direction)
	JobFinished(dir Direction, outcome Outcome)
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(Direction) {}
func (nopRecorder) JobFinished(Direction, Outcome) {}
