package bluetooth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the controller lifecycle state.
type State int

const (
	Stopped State = iota
	Started
)

func (s State) String() string {
	if s == Started {
		return "started"
	}
	return "stopped"
}

// Status is a point-in-time view of the controller.
type Status struct {
	State         State
	RoutingActive bool
	Snapshot
}

// Controller is the public lifecycle surface: it owns the profile proxy and
// event subscription, and the single listener binding.
//
// Activate and Deactivate issue routing requests directly and only while
// started; they return ErrNotStarted otherwise. A listener must not call Start
// or Stop from a callback delivered during Start.
type Controller struct {
	profiles ProfileGateway
	routing  RoutingGateway
	router   *Router
	probe    *Probe
	log      *slog.Logger

	mu      sync.Mutex // serializes Start and Stop
	started atomic.Bool
	sub     SubscriptionHandle
}

// NewController wires a Controller. router must have been created with the
// same routing gateway.
func NewController(profiles ProfileGateway, routing RoutingGateway, router *Router, probe *Probe, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		profiles: profiles,
		routing:  routing,
		router:   router,
		probe:    probe,
		log:      log,
	}
}

// Start opens the profile proxy, subscribes to platform events, seeds already
// connected headsets and binds l. It fails with ErrAlreadyStarted when called
// twice without Stop, leaving the first binding in place.
func (c *Controller) Start(l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.Load() {
		return ErrAlreadyStarted
	}
	if err := c.profiles.OpenProxy(); err != nil {
		return fmt.Errorf("%w: open profile proxy: %w", ErrGatewayUnavailable, err)
	}

	c.router.Bind(l)
	sub, err := c.profiles.Subscribe(c.router.Handle)
	if err != nil {
		c.router.Reset()
		if cerr := c.profiles.CloseProxy(); cerr != nil {
			c.log.Warn("close profile proxy failed", "error", cerr)
		}
		return fmt.Errorf("%w: subscribe: %w", ErrGatewayUnavailable, err)
	}
	c.sub = sub
	c.started.Store(true)

	if err := c.probe.Run(c.router); err != nil {
		c.log.Warn("preconnected device probe failed", "error", err)
	}
	c.log.Info("bluetooth controller started")
	return nil
}

// Stop unsubscribes, closes the profile proxy and cancels any running job.
// It never fails: gateway errors are logged and teardown continues. Calling
// Stop while stopped is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started.Load() {
		return
	}
	c.started.Store(false)

	if err := c.profiles.Unsubscribe(c.sub); err != nil {
		c.log.Warn("unsubscribe failed", "error", err)
	}
	c.sub = ""
	if err := c.profiles.CloseProxy(); err != nil {
		c.log.Warn("close profile proxy failed", "error", err)
	}
	c.router.Reset()
	c.log.Info("bluetooth controller stopped")
}

// Activate requests Bluetooth routing regardless of headset state. A running
// DisableJob is cancelled first so it cannot undo the request.
func (c *Controller) Activate() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	c.router.Override(Enabled)
	if err := c.routing.RequestEnable(); err != nil {
		return fmt.Errorf("request routing start: %w", err)
	}
	return nil
}

// Deactivate requests routing back to the built-in device and releases audio
// focus. A running EnableJob is cancelled first.
func (c *Controller) Deactivate() error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	c.router.Override(Disabled)
	var errs []error
	if err := c.routing.RequestDisable(); err != nil {
		errs = append(errs, fmt.Errorf("request routing stop: %w", err))
	}
	if err := c.routing.ReleaseFocus(); err != nil {
		errs = append(errs, fmt.Errorf("release audio focus: %w", err))
	}
	return errors.Join(errs...)
}

// Status reports the lifecycle state and the router's view.
func (c *Controller) Status() Status {
	st := Status{State: Stopped}
	if c.started.Load() {
		st.State = Started
		st.Snapshot = c.router.Snapshot()
		st.RoutingActive = c.routing.IsActive()
	}
	return st
}
