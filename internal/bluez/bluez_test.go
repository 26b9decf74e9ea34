package bluez

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

const budsPath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

func TestDeviceObjectPath(t *testing.T) {
	if got := deviceObjectPath("hci0", "AA:BB:CC:DD:EE:FF"); got != budsPath {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestMacFromPath(t *testing.T) {
	cases := []struct {
		path dbus.ObjectPath
		want string
	}{
		{budsPath, "AA:BB:CC:DD:EE:FF"},
		{budsPath + "/fd0", "AA:BB:CC:DD:EE:FF"},
		{"/org/bluez/hci1/dev_AA_BB_CC_DD_EE_FF", ""},
		{"/org/bluez/hci0", ""},
	}
	for _, c := range cases {
		if got := macFromPath("hci0", c.path); got != c.want {
			t.Fatalf("macFromPath(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestDeviceFromProps(t *testing.T) {
	props := map[string]dbus.Variant{
		"Address": dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"Alias":   dbus.MakeVariant("Galaxy Buds"),
		"UUIDs":   dbus.MakeVariant([]string{"0000110b-0000-1000-8000-00805f9b34fb", "0000111E-0000-1000-8000-00805F9B34FB"}),
	}
	d, ok := deviceFromProps("hci0", budsPath, props)
	if !ok || d.ID != "AA:BB:CC:DD:EE:FF" || d.Name != "Galaxy Buds" {
		t.Fatalf("unexpected device %+v ok=%v", d, ok)
	}

	props["UUIDs"] = dbus.MakeVariant([]string{"0000110b-0000-1000-8000-00805f9b34fb"})
	if _, ok := deviceFromProps("hci0", budsPath, props); ok {
		t.Fatalf("expected a sink-only device to be rejected")
	}
}

func propsChanged(path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Path: path,
		Name: propsSignal,
		Body: []interface{}{iface, changed, []string{}},
	}
}

func TestTranslate(t *testing.T) {
	p := NewProfiles(Options{})
	buds := bluetooth.Device{ID: "AA:BB:CC:DD:EE:FF", Name: "Galaxy Buds"}
	lookup := func(path dbus.ObjectPath) (bluetooth.Device, bool) {
		return buds, path == budsPath
	}

	cases := []struct {
		name string
		sig  *dbus.Signal
		want bluetooth.Event
		ok   bool
	}{
		{
			name: "connected",
			sig:  propsChanged(budsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}),
			want: bluetooth.Event{Kind: bluetooth.DeviceConnected, Device: buds},
			ok:   true,
		},
		{
			name: "disconnected",
			sig:  propsChanged(budsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}),
			want: bluetooth.Event{Kind: bluetooth.DeviceDisconnected, Device: bluetooth.Device{ID: buds.ID}},
			ok:   true,
		},
		{
			name: "transport active",
			sig:  propsChanged(budsPath+"/fd0", transportIface, map[string]dbus.Variant{"State": dbus.MakeVariant("active")}),
			want: bluetooth.Event{Kind: bluetooth.AudioPathActive, Device: bluetooth.Device{ID: buds.ID}},
			ok:   true,
		},
		{
			name: "transport idle",
			sig:  propsChanged(budsPath+"/fd0", transportIface, map[string]dbus.Variant{"State": dbus.MakeVariant("idle")}),
			want: bluetooth.Event{Kind: bluetooth.AudioPathInactive, Device: bluetooth.Device{ID: buds.ID}},
			ok:   true,
		},
		{
			name: "transport pending",
			sig:  propsChanged(budsPath+"/fd0", transportIface, map[string]dbus.Variant{"State": dbus.MakeVariant("pending")}),
		},
		{
			name: "unrelated property",
			sig:  propsChanged(budsPath, deviceIface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}),
		},
		{
			name: "adapter signal",
			sig:  propsChanged("/org/bluez/hci0", "org.bluez.Adapter1", map[string]dbus.Variant{"Powered": dbus.MakeVariant(true)}),
		},
		{
			name: "malformed body",
			sig:  &dbus.Signal{Path: budsPath, Name: propsSignal, Body: []interface{}{deviceIface}},
		},
	}
	for _, c := range cases {
		got, ok := p.translate(c.sig, lookup)
		if ok != c.ok || got != c.want {
			t.Fatalf("%s: got %+v ok=%v, want %+v ok=%v", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestTranslate_Allowlist(t *testing.T) {
	p := NewProfiles(Options{Allow: []string{"11:22:33:44:55:66"}})
	sig := propsChanged(budsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)})
	if _, ok := p.translate(sig, nil); ok {
		t.Fatalf("expected a device outside the allowlist to be ignored")
	}
}

func TestTransportActive(t *testing.T) {
	objs := managedObjects{
		budsPath: {deviceIface: {}},
		budsPath + "/fd0": {transportIface: {"State": dbus.MakeVariant("active")}},
		"/org/bluez/hci0/dev_11_22_33_44_55_66/fd1": {transportIface: {"State": dbus.MakeVariant("active")}},
	}
	if !transportActive(objs, budsPath) {
		t.Fatalf("expected active transport")
	}
	objs[budsPath+"/fd0"][transportIface]["State"] = dbus.MakeVariant("idle")
	if transportActive(objs, budsPath) {
		t.Fatalf("expected another headset's transport to be ignored")
	}
}

func TestClosedGatewayErrors(t *testing.T) {
	p := NewProfiles(Options{})
	r := NewRouting(p, "")

	if _, err := p.ConnectedDevices(); !errors.Is(err, errNotOpen) {
		t.Fatalf("expected errNotOpen, got %v", err)
	}
	if _, err := p.Subscribe(func(bluetooth.Event) {}); !errors.Is(err, errNotOpen) {
		t.Fatalf("expected errNotOpen, got %v", err)
	}
	if err := p.CloseProxy(); err != nil {
		t.Fatalf("closing a closed proxy: %v", err)
	}
	if err := r.RequestEnable(); !errors.Is(err, errNotOpen) {
		t.Fatalf("expected errNotOpen, got %v", err)
	}
	if r.IsActive() {
		t.Fatalf("expected inactive without a bus")
	}
}
