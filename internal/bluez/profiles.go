package bluez

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

var errNotOpen = errors.New("bluez: profile proxy not open")

// Options configures the BlueZ gateways.
type Options struct {
	// Adapter is the controller name, e.g. "hci0".
	Adapter string
	// Allow restricts headsets to these addresses. Empty allows all.
	Allow  []string
	Logger *slog.Logger
}

// Profiles implements bluetooth.ProfileGateway. Opening the proxy connects to
// the system bus; subscriptions translate PropertiesChanged signals on
// Device1 and MediaTransport1 objects into bluetooth events.
type Profiles struct {
	adapter string
	allow   []string
	log     *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
	subs map[bluetooth.SubscriptionHandle]*subscription
}

type subscription struct {
	ch   chan *dbus.Signal
	done chan struct{}
}

// NewProfiles returns a closed Profiles gateway.
func NewProfiles(opts Options) *Profiles {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Profiles{
		adapter: opts.Adapter,
		allow:   opts.Allow,
		log:     opts.Logger,
		subs:    make(map[bluetooth.SubscriptionHandle]*subscription),
	}
}

// OpenProxy connects to the system bus and checks that BlueZ is running.
func (p *Profiles) OpenProxy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return fmt.Errorf("bluez: list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return fmt.Errorf("bluez: %s not found on system bus, is bluetooth.service running?", busName)
	}
	p.conn = conn
	return nil
}

// CloseProxy closes the bus connection and ends all subscriptions.
func (p *Profiles) CloseProxy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	for h, s := range p.subs {
		p.conn.RemoveSignal(s.ch)
		close(s.done)
		delete(p.subs, h)
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Profiles) bus() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, errNotOpen
	}
	return p.conn, nil
}

// ConnectedDevices returns the headsets BlueZ reports as connected.
func (p *Profiles) ConnectedDevices() ([]bluetooth.Device, error) {
	conn, err := p.bus()
	if err != nil {
		return nil, err
	}
	objs, err := getManagedObjects(conn)
	if err != nil {
		return nil, err
	}
	var out []bluetooth.Device
	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok || macFromPath(p.adapter, path) == "" {
			continue
		}
		if connected, _ := boolProp(props, "Connected"); !connected {
			continue
		}
		d, ok := deviceFromProps(p.adapter, path, props)
		if !ok || !p.allowed(d.ID) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b bluetooth.Device) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// Subscribe starts delivering events to h from a dedicated goroutine, one at
// a time and in bus order.
func (p *Profiles) Subscribe(h func(bluetooth.Event)) (bluetooth.SubscriptionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return "", errNotOpen
	}
	if err := p.conn.AddMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(rootPath),
	); err != nil {
		return "", fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}
	s := &subscription{ch: make(chan *dbus.Signal, 16), done: make(chan struct{})}
	p.conn.Signal(s.ch)
	handle := bluetooth.SubscriptionHandle(uuid.NewString())
	p.subs[handle] = s

	go p.watch(p.conn, s, h)
	return handle, nil
}

// Unsubscribe stops a subscription. Unknown handles are ignored.
func (p *Profiles) Unsubscribe(handle bluetooth.SubscriptionHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.subs[handle]
	if !ok {
		return nil
	}
	delete(p.subs, handle)
	close(s.done)
	if p.conn == nil {
		return nil
	}
	p.conn.RemoveSignal(s.ch)
	if err := p.conn.RemoveMatchSignal(
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(rootPath),
	); err != nil {
		return fmt.Errorf("bluez: RemoveMatchSignal: %w", err)
	}
	return nil
}

func (p *Profiles) watch(conn *dbus.Conn, s *subscription, h func(bluetooth.Event)) {
	lookup := func(path dbus.ObjectPath) (bluetooth.Device, bool) {
		props, err := getAllProps(conn, path, deviceIface)
		if err != nil {
			p.log.Debug("device lookup failed", "path", path, "error", err)
			return bluetooth.Device{}, false
		}
		return deviceFromProps(p.adapter, path, props)
	}
	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.ch:
			if !ok {
				return
			}
			ev, ok := p.translate(sig, lookup)
			if !ok {
				continue
			}
			h(ev)
		}
	}
}

// translate maps a PropertiesChanged signal to a bluetooth event. lookup
// resolves a device path to a headset when a connection appears.
func (p *Profiles) translate(sig *dbus.Signal, lookup func(dbus.ObjectPath) (bluetooth.Device, bool)) (bluetooth.Event, bool) {
	if sig == nil || sig.Name != propsSignal {
		return bluetooth.Event{}, false
	}
	// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
	if len(sig.Body) < 2 {
		return bluetooth.Event{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return bluetooth.Event{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return bluetooth.Event{}, false
	}
	addr := macFromPath(p.adapter, sig.Path)
	if addr == "" || !p.allowed(addr) {
		return bluetooth.Event{}, false
	}

	switch iface {
	case deviceIface:
		connected, ok := boolProp(changed, "Connected")
		if !ok {
			return bluetooth.Event{}, false
		}
		if !connected {
			// Properties may already be gone; the address is enough to match.
			return bluetooth.Event{Kind: bluetooth.DeviceDisconnected, Device: bluetooth.Device{ID: addr}}, true
		}
		d, ok := lookup(sig.Path)
		if !ok {
			return bluetooth.Event{}, false
		}
		return bluetooth.Event{Kind: bluetooth.DeviceConnected, Device: d}, true

	case transportIface:
		switch stringProp(changed, "State") {
		case "active":
			return bluetooth.Event{Kind: bluetooth.AudioPathActive, Device: bluetooth.Device{ID: addr}}, true
		case "idle":
			return bluetooth.Event{Kind: bluetooth.AudioPathInactive, Device: bluetooth.Device{ID: addr}}, true
		}
	}
	return bluetooth.Event{}, false
}

func (p *Profiles) allowed(addr string) bool {
	if len(p.allow) == 0 {
		return true
	}
	return slices.ContainsFunc(p.allow, func(a string) bool { return strings.EqualFold(a, addr) })
}
