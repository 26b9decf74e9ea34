package main

import "github.com/mil-ad/audioswitch/internal/bluetooth"

// IPCRequest is sent from the CLI client to the daemon.
type IPCRequest struct {
	Command string `json:"command"` // "status" | "devices" | "activate" | "deactivate"
}

// DeviceInfo describes a known headset.
type DeviceInfo struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// IPCResponse is sent from the daemon back to the CLI client.
type IPCResponse struct {
	State    string       `json:"state,omitempty"`   // "started" | "stopped"
	Routing  string       `json:"routing,omitempty"` // "active" | "inactive"
	Pending  string       `json:"pending,omitempty"` // "enable" | "disable"
	Endpoint *DeviceInfo  `json:"endpoint,omitempty"`
	Devices  []DeviceInfo `json:"devices,omitempty"`
	Error    string       `json:"error,omitempty"`
}

func deviceInfo(d bluetooth.Device) DeviceInfo {
	return DeviceInfo{Address: d.ID, Name: d.Name}
}

func statusResponse(st bluetooth.Status) IPCResponse {
	resp := IPCResponse{State: st.State.String(), Routing: "inactive"}
	if st.RoutingActive {
		resp.Routing = "active"
	}
	if st.Pending != 0 {
		resp.Pending = st.Pending.String()
	}
	if st.Endpoint.ID != "" {
		ep := deviceInfo(st.Endpoint)
		resp.Endpoint = &ep
	}
	for _, d := range st.Devices {
		resp.Devices = append(resp.Devices, deviceInfo(d))
	}
	return resp
}
