// Package bluez implements the bluetooth gateways on top of BlueZ over the
// system D-Bus.
package bluez

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

const (
	busName        = "org.bluez"
	rootPath       = "/org/bluez"
	deviceIface    = "org.bluez.Device1"
	transportIface = "org.bluez.MediaTransport1"
	propsIface     = "org.freedesktop.DBus.Properties"
	propsSignal    = "org.freedesktop.DBus.Properties.PropertiesChanged"
	objManager     = "org.freedesktop.DBus.ObjectManager"

	// HFPUUID is the Hands-Free profile (headset role).
	HFPUUID = "0000111e-0000-1000-8000-00805f9b34fb"
	// HSPUUID is the Headset profile.
	HSPUUID = "00001108-0000-1000-8000-00805f9b34fb"

	callTimeout = 2 * time.Second
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func adapterPath(adapter string) string {
	return rootPath + "/" + adapter
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(addr, ":", "_")
	return dbus.ObjectPath(adapterPath(adapter) + "/dev_" + escaped)
}

// macFromPath extracts the MAC address from a BlueZ device object path or any
// object below it, such as a media transport.
func macFromPath(adapter string, path dbus.ObjectPath) string {
	s := string(path)
	prefix := adapterPath(adapter) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	s = s[len(prefix):]
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", ":")
}

func isHeadset(uuids []string) bool {
	return slices.ContainsFunc(uuids, func(u string) bool {
		return strings.EqualFold(u, HFPUUID) || strings.EqualFold(u, HSPUUID)
	})
}

func stringProp(props map[string]dbus.Variant, name string) string {
	v, ok := props[name]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func boolProp(props map[string]dbus.Variant, name string) (bool, bool) {
	v, ok := props[name]
	if !ok {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

// deviceFromProps builds a Device from Device1 properties. It reports false
// for devices that do not speak a headset profile.
func deviceFromProps(adapter string, path dbus.ObjectPath, props map[string]dbus.Variant) (bluetooth.Device, bool) {
	uuids, _ := props["UUIDs"].Value().([]string)
	if !isHeadset(uuids) {
		return bluetooth.Device{}, false
	}
	addr := stringProp(props, "Address")
	if addr == "" {
		addr = macFromPath(adapter, path)
	}
	if addr == "" {
		return bluetooth.Device{}, false
	}
	name := stringProp(props, "Alias")
	if name == "" {
		name = stringProp(props, "Name")
	}
	return bluetooth.Device{ID: addr, Name: name}, true
}

func getManagedObjects(conn *dbus.Conn) (managedObjects, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var objs managedObjects
	call := conn.Object(busName, "/").CallWithContext(ctx, objManager+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", call.Err)
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

func getAllProps(conn *dbus.Conn, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var props map[string]dbus.Variant
	err := conn.Object(busName, path).CallWithContext(ctx, propsIface+".GetAll", 0, iface).Store(&props)
	return props, err
}
