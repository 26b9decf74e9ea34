package bluetooth

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mil-ad/audioswitch/internal/clock"
)

// RouterConfig configures a Router. Zero values select defaults.
type RouterConfig struct {
	Jobs       JobConfig
	Preference Preference
	Recorder   Recorder
	Logger     *slog.Logger
}

// Snapshot is a point-in-time view of the router.
type Snapshot struct {
	Devices  []Device
	Endpoint Device
	// Pending is the direction of the running job, or 0 when idle.
	Pending Direction
}

// Router turns platform notifications into routing jobs and listener
// callbacks. It keeps at most one job per direction and never lets both
// directions run at once: starting a job always supersedes the other
// direction's job first.
//
// All state is guarded by one mutex, held while a notification or a job's
// poll step is processed and never across a scheduled callback. Listener
// callbacks are delivered after the mutex is released, so a listener may call
// back into the Controller.
type Router struct {
	clock   clock.Clock
	gateway RoutingGateway
	jobs    JobConfig
	pref    Preference
	rec     Recorder
	log     *slog.Logger

	mu       sync.Mutex
	closed   bool
	listener Listener
	devices  []Device
	endpoint Device
	routed   bool
	released string // endpoint the running DisableJob routes away from
	enable   *EnableJob
	disable  *DisableJob
	notes    []func()
}

// NewRouter returns an idle Router.
func NewRouter(c clock.Clock, gw RoutingGateway, cfg RouterConfig) *Router {
	r := &Router{
		clock:   c,
		gateway: gw,
		jobs:    cfg.Jobs.withDefaults(),
		pref:    cfg.Preference,
		rec:     cfg.Recorder,
		log:     cfg.Logger,
	}
	if r.pref == nil {
		r.pref = MostRecent
	}
	if r.rec == nil {
		r.rec = nopRecorder{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Bind sets the listener that receives notifications and reopens a Router
// closed by Reset. nil unbinds.
func (r *Router) Bind(l Listener) {
	r.dispatch(func() {
		r.listener = l
		r.closed = false
	})
}

// Handle processes one platform notification. Notifications arriving after
// Reset and before the next Bind are dropped.
func (r *Router) Handle(ev Event) {
	r.dispatch(func() {
		if r.closed {
			r.log.Debug("dropping bluetooth event after reset", "kind", ev.Kind.String(), "device", ev.Device.ID)
			return
		}
		r.handle(ev)
	})
}

// Seed records devices that were connected before events were observed and
// starts a single EnableJob for the preferred one if no enable is running.
func (r *Router) Seed(devices []Device) {
	r.dispatch(func() {
		if r.closed {
			return
		}
		for _, d := range devices {
			d := d // per-iteration copy; the deferred note must see this device
			if r.add(d) {
				r.notify(func(l Listener) { l.OnDeviceConnected(d) })
			}
		}
		if len(r.devices) > 0 && r.enable == nil {
			r.startEnable()
		}
	})
}

// Override cancels the running job that contradicts a manual routing request
// in direction dir.
func (r *Router) Override(dir Direction) {
	r.dispatch(func() {
		if dir == Enabled {
			r.cancelDisable()
		} else {
			r.cancelEnable()
		}
	})
}

// Reset cancels any running job, forgets known devices, unbinds the listener
// and drops further notifications until the next Bind.
func (r *Router) Reset() {
	r.dispatch(func() {
		r.cancelEnable()
		r.cancelDisable()
		r.devices = nil
		r.endpoint = Device{}
		r.routed = false
		r.released = ""
		r.listener = nil
		r.closed = true
	})
}

// Snapshot returns the known devices, the routing endpoint and the pending
// direction.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{Devices: slices.Clone(r.devices)}
	if r.routed {
		s.Endpoint = r.endpoint
	}
	switch {
	case r.enable != nil:
		s.Pending = Enabled
	case r.disable != nil:
		s.Pending = Disabled
	}
	return s
}

func (r *Router) dispatch(f func()) {
	r.mu.Lock()
	f()
	notes := r.notes
	r.notes = nil
	r.mu.Unlock()

	for _, n := range notes {
		n()
	}
}

func (r *Router) notify(f func(Listener)) {
	l := r.listener
	if l == nil {
		return
	}
	r.notes = append(r.notes, func() { f(l) })
}

func (r *Router) handle(ev Event) {
	r.log.Debug("bluetooth event", "kind", ev.Kind.String(), "device", ev.Device.ID)
	switch ev.Kind {
	case DeviceConnected:
		r.connected(ev.Device)
	case DeviceDisconnected:
		r.disconnected(ev.Device)
	case AudioPathActive:
		if r.enable != nil && sameDevice(ev.Device, r.endpoint.ID) {
			r.enable.Confirm()
		}
	case AudioPathInactive:
		if r.disable != nil && sameDevice(ev.Device, r.released) {
			r.disable.Confirm()
		}
	default:
		r.log.Warn("unknown bluetooth event", "kind", int(ev.Kind))
	}
}

func (r *Router) connected(d Device) {
	if !r.add(d) {
		return
	}
	r.log.Info("headset connected", "device", d.String())
	r.notify(func(l Listener) { l.OnDeviceConnected(d) })
	if r.enable != nil {
		return
	}
	r.startEnable()
}

func (r *Router) disconnected(d Device) {
	i := r.index(d.ID)
	if i < 0 {
		return
	}
	r.devices = slices.Delete(r.devices, i, i+1)
	r.log.Info("headset disconnected", "device", d.String())
	r.notify(func(l Listener) { l.OnDeviceDisconnected(d) })

	// Losing a device that is not the routing endpoint only changes the set.
	if !r.routed || r.endpoint.ID != d.ID {
		return
	}
	r.routed = false
	r.endpoint = Device{}
	if len(r.devices) > 0 {
		r.startEnable()
		return
	}
	r.startDisable(d.ID)
}

// sameDevice reports whether an audio path event concerns id. Events that
// carry no address match any device.
func sameDevice(d Device, id string) bool {
	return d.ID == "" || strings.EqualFold(d.ID, id)
}

func (r *Router) add(d Device) bool {
	if r.index(d.ID) >= 0 {
		return false
	}
	r.devices = append(r.devices, d)
	return true
}

func (r *Router) index(id string) int {
	return slices.IndexFunc(r.devices, func(d Device) bool { return d.ID == id })
}

func (r *Router) startEnable() {
	target, ok := r.pref.Preferred(slices.Clone(r.devices))
	if !ok {
		return
	}
	r.cancelDisable()
	r.cancelEnable()

	r.endpoint = target
	r.routed = true
	if sel, ok := r.gateway.(EndpointSelector); ok {
		sel.SelectEndpoint(target, true)
	}

	j := NewEnableJob(r.clock, r.gateway, r.jobs, r.log.With("device", target.ID))
	j.exec = r.dispatch
	r.enable = j
	r.rec.JobStarted(Enabled)
	_ = j.Run(func(outcome Outcome) {
		if r.enable == j {
			r.enable = nil
		}
		r.rec.JobFinished(Enabled, outcome)
		switch outcome {
		case OutcomeSucceeded:
			r.notify(func(l Listener) { l.OnRoutingActivated() })
		case OutcomeTimedOut:
			r.notify(func(l Listener) { l.OnRoutingFailed(ErrRoutingTimeout) })
		}
	})
}

func (r *Router) startDisable(from string) {
	r.cancelEnable()
	r.cancelDisable()
	r.released = from

	j := NewDisableJob(r.clock, r.gateway, r.jobs, r.log)
	j.exec = r.dispatch
	r.disable = j
	r.rec.JobStarted(Disabled)
	_ = j.Run(func(outcome Outcome) {
		if r.disable == j {
			r.disable = nil
		}
		r.rec.JobFinished(Disabled, outcome)
		if outcome == OutcomeTimedOut {
			r.notify(func(l Listener) { l.OnRoutingFailed(ErrRoutingTimeout) })
		}
	})
}

func (r *Router) cancelEnable() {
	if r.enable == nil {
		return
	}
	r.enable.Cancel()
	r.enable = nil
	r.rec.JobFinished(Enabled, OutcomeSuperseded)
}

func (r *Router) cancelDisable() {
	if r.disable == nil {
		return
	}
	r.disable.Cancel()
	r.disable = nil
	r.rec.JobFinished(Disabled, OutcomeSuperseded)
}
