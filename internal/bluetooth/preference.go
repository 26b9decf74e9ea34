package bluetooth

import "fmt"

// Preference picks the routing endpoint among known devices, which are given
// oldest connection first.
type Preference interface {
	Preferred(devices []Device) (Device, bool)
}

// PreferenceFunc adapts a function to Preference.
type PreferenceFunc func(devices []Device) (Device, bool)

func (f PreferenceFunc) Preferred(devices []Device) (Device, bool) { return f(devices) }

var (
	// MostRecent prefers the most recently connected headset.
	MostRecent Preference = PreferenceFunc(func(devices []Device) (Device, bool) {
		if len(devices) == 0 {
			return Device{}, false
		}
		return devices[len(devices)-1], true
	})

	// FirstConnected keeps routing to the headset that connected first.
	FirstConnected Preference = PreferenceFunc(func(devices []Device) (Device, bool) {
		if len(devices) == 0 {
			return Device{}, false
		}
		return devices[0], true
	})
)

// ParsePreference maps a config value to a Preference. The empty string
// selects MostRecent.
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "", "most-recent":
		return MostRecent, nil
	case "first-connected":
		return FirstConnected, nil
	}
	return nil, fmt.Errorf("bluetooth: unknown preference %q", s)
}
