package bluetooth

import (
	"fmt"
	"log/slog"
)

// Probe seeds a Router with headsets that were already connected when the
// controller started. The event stream only reports transitions, so without
// it a headset paired before start would never be routed to.
type Probe struct {
	profiles ProfileGateway
	log      *slog.Logger
}

// NewProbe returns a Probe reading from profiles.
func NewProbe(profiles ProfileGateway, log *slog.Logger) *Probe {
	if log == nil {
		log = slog.Default()
	}
	return &Probe{profiles: profiles, log: log}
}

// Run lists connected headsets and seeds r with them.
func (p *Probe) Run(r *Router) error {
	devices, err := p.profiles.ConnectedDevices()
	if err != nil {
		return fmt.Errorf("list connected devices: %w", err)
	}
	p.log.Info("found preconnected headsets", "count", len(devices))
	r.Seed(devices)
	return nil
}
