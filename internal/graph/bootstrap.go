package graph

import (
	"fmt"
	"strings"

	"opsmemory/config"
	"opsmemory/internal/logger"
)

// Default bootstrap topology.
var (
	DefaultUnits   = []string{"BWW", "ARBYS", "SONIC"}
	DefaultSites   = []string{"155", "234", "789"}
	DefaultDevices = []string{"FortiGate-01", "Switch-01", "AP-01"}
)

// UnitID returns the node id of a unit.
func UnitID(unit string) string {
	return "unit_" + strings.ToUpper(unit)
}

// SiteID returns the node id of a site within a unit.
func SiteID(unit, site string) string {
	return fmt.Sprintf("site_%s_%s", strings.ToUpper(unit), site)
}

// DeviceID returns the node id of a device at a site.
func DeviceID(unit, site, device string) string {
	return fmt.Sprintf("device_%s_%s_%s", strings.ToUpper(unit), site, device)
}

// EntityNodeID maps a UNIT, UNIT_SITE or UNIT_SITE_DEVICE entity key to
// its node id. Keys that already carry a node prefix are returned as is.
func EntityNodeID(entity string) string {
	for _, prefix := range []string{"unit_", "site_", "device_", "event_"} {
		if strings.HasPrefix(entity, prefix) {
			return entity
		}
	}
	parts := strings.SplitN(entity, "_", 3)
	switch len(parts) {
	case 1:
		return UnitID(parts[0])
	case 2:
		return SiteID(parts[0], parts[1])
	default:
		return DeviceID(parts[0], parts[1], parts[2])
	}
}

// Bootstrap seeds a unit, site and device hierarchy joined by belongs_to
// edges. Empty lists fall back to the defaults.
func (g *Graph) Bootstrap(cfg config.GraphConfig) error {
	units, sites, devices := cfg.Units, cfg.Sites, cfg.Devices
	if len(units) == 0 {
		units = DefaultUnits
	}
	if len(sites) == 0 {
		sites = DefaultSites
	}
	if len(devices) == 0 {
		devices = DefaultDevices
	}

	for _, unit := range units {
		unit = strings.ToUpper(strings.TrimSpace(unit))
		if _, err := g.AddNode(Node{
			ID:         UnitID(unit),
			Type:       NodeUnit,
			Properties: map[string]any{"name": unit, "type": "restaurant_chain"},
			Labels:     []string{unit},
		}); err != nil {
			return err
		}

		for _, site := range sites {
			siteID := SiteID(unit, site)
			if _, err := g.AddNode(Node{
				ID:   siteID,
				Type: NodeSite,
				Properties: map[string]any{
					"unit":     unit,
					"site":     site,
					"location": fmt.Sprintf("%s Store %s", unit, site),
				},
				Labels: []string{unit, "site"},
			}); err != nil {
				return err
			}
			if err := g.AddRelationship(Relationship{
				ID:       fmt.Sprintf("rel_site_%s_%s", unit, site),
				Source:   siteID,
				Target:   UnitID(unit),
				Type:     RelBelongsTo,
				Strength: 1,
			}); err != nil {
				return err
			}

			for _, device := range devices {
				kind := strings.SplitN(device, "-", 2)[0]
				deviceID := DeviceID(unit, site, device)
				if _, err := g.AddNode(Node{
					ID:   deviceID,
					Type: NodeDevice,
					Properties: map[string]any{
						"unit":        unit,
						"site":        site,
						"device_name": device,
						"device_type": kind,
					},
					Labels: []string{unit, "device", kind},
				}); err != nil {
					return err
				}
				if err := g.AddRelationship(Relationship{
					ID:       fmt.Sprintf("rel_device_%s_%s_%s", unit, site, device),
					Source:   deviceID,
					Target:   siteID,
					Type:     RelBelongsTo,
					Strength: 1,
				}); err != nil {
					return err
				}
			}
		}
	}
	s := g.Stats()
	logger.Infof("graph bootstrapped: %d nodes, %d relationships", s.Nodes, s.Relationships)
	return nil
}
