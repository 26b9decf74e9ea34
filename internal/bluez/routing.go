package bluez

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

// DefaultFocusName is the bus name claimed while holding audio focus.
const DefaultFocusName = "io.github.milad.AudioSwitch.Focus"

// Routing implements bluetooth.RoutingGateway by connecting and disconnecting
// the hands-free profile on the selected headset. It shares the bus
// connection opened by Profiles, so it only works while the proxy is open.
//
// Audio focus is modelled as exclusive ownership of a well-known bus name.
type Routing struct {
	profiles  *Profiles
	focusName string

	mu       sync.Mutex
	endpoint string
}

// NewRouting returns a Routing gateway using the connection of p.
func NewRouting(p *Profiles, focusName string) *Routing {
	if focusName == "" {
		focusName = DefaultFocusName
	}
	return &Routing{profiles: p, focusName: focusName}
}

// SelectEndpoint sets the headset routing requests are sent to.
func (r *Routing) SelectEndpoint(d bluetooth.Device, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		r.endpoint = ""
		return
	}
	r.endpoint = d.ID
}

func (r *Routing) target() (*dbus.Conn, dbus.ObjectPath, error) {
	conn, err := r.profiles.bus()
	if err != nil {
		return nil, "", err
	}
	r.mu.Lock()
	addr := r.endpoint
	r.mu.Unlock()
	if addr == "" {
		return nil, "", bluetooth.ErrNoEndpoint
	}
	return conn, deviceObjectPath(r.profiles.adapter, addr), nil
}

// RequestEnable asks BlueZ to connect the hands-free profile. The call does
// not wait for a reply; the transport state change confirms it.
func (r *Routing) RequestEnable() error {
	return r.send("ConnectProfile")
}

// RequestDisable asks BlueZ to disconnect the hands-free profile.
func (r *Routing) RequestDisable() error {
	return r.send("DisconnectProfile")
}

func (r *Routing) send(method string) error {
	conn, path, err := r.target()
	if err != nil {
		return err
	}
	call := conn.Object(busName, path).Go(deviceIface+"."+method, dbus.FlagNoReplyExpected, nil, HFPUUID)
	if call.Err != nil {
		return fmt.Errorf("bluez: %s: %w", method, call.Err)
	}
	return nil
}

// IsActive reports whether a media transport of the endpoint is active.
func (r *Routing) IsActive() bool {
	conn, path, err := r.target()
	if err != nil {
		return false
	}
	objs, err := getManagedObjects(conn)
	if err != nil {
		r.profiles.log.Debug("transport lookup failed", "error", err)
		return false
	}
	return transportActive(objs, path)
}

func transportActive(objs managedObjects, device dbus.ObjectPath) bool {
	prefix := string(device) + "/"
	for path, ifaces := range objs {
		props, ok := ifaces[transportIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		if stringProp(props, "State") == "active" {
			return true
		}
	}
	return false
}

// AcquireFocus claims the focus bus name. It fails if another client holds it.
func (r *Routing) AcquireFocus() error {
	conn, err := r.profiles.bus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(r.focusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("bluez: request focus name: %w", err)
	}
	switch reply {
	case dbus.RequestNameReplyPrimaryOwner, dbus.RequestNameReplyAlreadyOwner:
		return nil
	}
	return fmt.Errorf("bluez: audio focus %s held by another client", r.focusName)
}

// ReleaseFocus gives up the focus bus name. Releasing a name that is not held
// is not an error.
func (r *Routing) ReleaseFocus() error {
	conn, err := r.profiles.bus()
	if err != nil {
		return err
	}
	if _, err := conn.ReleaseName(r.focusName); err != nil {
		return fmt.Errorf("bluez: release focus name: %w", err)
	}
	return nil
}
