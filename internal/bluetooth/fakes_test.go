package bluetooth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mil-ad/audioswitch/internal/clock"
)

var (
	headsetA = Device{ID: "AA:AA:AA:AA:AA:AA", Name: "Buds A"}
	headsetB = Device{ID: "BB:BB:BB:BB:BB:BB", Name: "Buds B"}
)

// fakeRouting records gateway calls. enableAfter/disableAfter flip the path
// state once that many requests of the given direction have been issued.
type fakeRouting struct {
	mu           sync.Mutex
	calls        []string
	active       bool
	focused      bool
	endpoint     Device
	enableAfter  int
	disableAfter int
	enables      int
	disables     int
	enableErr    error
}

func (f *fakeRouting) RequestEnable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "enable")
	f.enables++
	if f.enableAfter > 0 && f.enables >= f.enableAfter {
		f.active = true
	}
	return f.enableErr
}

func (f *fakeRouting) RequestDisable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "disable")
	f.disables++
	if f.disableAfter > 0 && f.disables >= f.disableAfter {
		f.active = false
	}
	return nil
}

func (f *fakeRouting) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeRouting) AcquireFocus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "acquire-focus")
	f.focused = true
	return nil
}

func (f *fakeRouting) ReleaseFocus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "release-focus")
	f.focused = false
	return nil
}

func (f *fakeRouting) SelectEndpoint(d Device, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.endpoint = d
	}
}

func (f *fakeRouting) setActive(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = v
}

func (f *fakeRouting) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeRouting) lastRequest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i] == "enable" || f.calls[i] == "disable" {
			return f.calls[i]
		}
	}
	return ""
}

type fakeProfiles struct {
	mu           sync.Mutex
	connected    []Device
	handler      func(Event)
	opened       int
	closed       int
	subscribed   int
	unsubscribed int
	openErr      error
	subscribeErr error
	closeErr     error
	unsubErr     error
}

func (f *fakeProfiles) OpenProxy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened++
	return nil
}

func (f *fakeProfiles) CloseProxy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeProfiles) ConnectedDevices() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Device(nil), f.connected...), nil
}

func (f *fakeProfiles) Subscribe(h func(Event)) (SubscriptionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return "", f.subscribeErr
	}
	f.subscribed++
	f.handler = h
	return "sub-1", nil
}

func (f *fakeProfiles) Unsubscribe(SubscriptionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed++
	f.handler = nil
	return f.unsubErr
}

func (f *fakeProfiles) emit(ev Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type recordingListener struct {
	mu           sync.Mutex
	connected    []Device
	disconnected []Device
	activated    int
	failures     []error
}

func (l *recordingListener) OnDeviceConnected(d Device) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = append(l.connected, d)
}

func (l *recordingListener) OnDeviceDisconnected(d Device) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = append(l.disconnected, d)
}

func (l *recordingListener) OnRoutingActivated() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activated++
}

func (l *recordingListener) OnRoutingFailed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, err)
}

// jobLog is a Recorder that flags any moment where two jobs run at once.
type jobLog struct {
	running    map[Direction]int
	started    map[Direction]int
	outcomes   map[Outcome]int
	violations []string
}

func newJobLog() *jobLog {
	return &jobLog{
		running:  map[Direction]int{},
		started:  map[Direction]int{},
		outcomes: map[Outcome]int{},
	}
}

func (j *jobLog) JobStarted(dir Direction) {
	if j.running[Enabled]+j.running[Disabled] > 0 {
		j.violations = append(j.violations, "started "+dir.String()+" while another job was running")
	}
	j.running[dir]++
	j.started[dir]++
}

func (j *jobLog) JobFinished(dir Direction, outcome Outcome) {
	j.running[dir]--
	if j.running[dir] < 0 {
		j.violations = append(j.violations, "finished "+dir.String()+" that was not running")
	}
	j.outcomes[outcome]++
}

type harness struct {
	clock    *clock.Manual
	routing  *fakeRouting
	listener *recordingListener
	jobs     *jobLog
	router   *Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    clock.NewManual(time.Unix(1700000000, 0)),
		routing:  &fakeRouting{},
		listener: &recordingListener{},
		jobs:     newJobLog(),
	}
	h.router = NewRouter(h.clock, h.routing, RouterConfig{Recorder: h.jobs})
	h.router.Bind(h.listener)
	return h
}

var errBoom = errors.New("boom")
