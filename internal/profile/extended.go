package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/settings"
)

// Live section names of an extended view.
const (
	SectionGeneral = "GENERAL"
	SectionIP4     = "IP4"
	SectionIP6     = "IP6"
	SectionDHCP4   = "DHCP4"
	SectionDHCP6   = "DHCP6"
)

// View is a rendered profile. Live holds the GENERAL, IP4, IP6, DHCP4 and
// DHCP6 sections of an extended read and is nil when the profile is not
// active.
type View struct {
	Identity    settings.Identity
	Settings    settings.Document
	Live        map[string]any
	FieldErrors settings.ValidationErrors
}

// Render flattens the view into one JSON object.
func (v View) Render() map[string]any {
	out := make(map[string]any, len(v.Settings)+len(v.Live))
	for name, g := range v.Settings {
		out[name] = g
	}
	for name, section := range v.Live {
		out[name] = section
	}
	return out
}

// MarshalJSON renders the flattened view.
func (v View) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Render())
}

// keyer picks between the current and legacy spelling of a key.
type keyer bool

func (legacy keyer) key(current, old string) string {
	if legacy {
		return old
	}
	return current
}

// liveState reads the active connection of uuid. A connection that is not
// active, or that vanishes between reads, yields nil.
func (m *Manager) liveState(ctx context.Context, uuid string, legacy bool) map[string]any {
	ac, active, err := m.client.ActiveConnectionByUUID(ctx, uuid)
	if err != nil {
		m.log.Debug("active connection lookup failed", "uuid", uuid, "error", err)
		return nil
	}
	if !active {
		return nil
	}

	k := keyer(legacy)
	general := m.general(ctx, ac, k)

	ip4, err := m.ipSection(ctx, ac.IP4Config, false, k)
	if err != nil {
		m.log.Debug("active connection vanished", "uuid", uuid, "error", err)
		return nil
	}
	ip6, err := m.ipSection(ctx, ac.IP6Config, true, k)
	if err != nil {
		m.log.Debug("active connection vanished", "uuid", uuid, "error", err)
		return nil
	}

	return map[string]any{
		SectionGeneral: general,
		SectionIP4:     ip4,
		SectionIP6:     ip6,
		SectionDHCP4:   m.dhcpSection(ctx, ac.DHCP4Config, false, k),
		SectionDHCP6:   m.dhcpSection(ctx, ac.DHCP6Config, true, k),
	}
}

func (m *Manager) general(ctx context.Context, ac nm.ActiveConnection, k keyer) map[string]any {
	devices := make([]map[string]any, 0, len(ac.Devices))
	for _, path := range ac.Devices {
		d, err := m.client.Device(ctx, path)
		if err != nil {
			continue
		}
		devices = append(devices, map[string]any{
			"interface":                          d.Interface,
			k.key("ipInterface", "ip-interface"): nullIfEmpty(d.IPInterface),
		})
	}

	var zone any
	if ac.Connection != "" {
		if cs, err := m.backend.GetSettings(ctx, ac.Connection); err == nil {
			zone = nullIfEmpty(nm.Properties(cs[settings.GroupConnection]).String("zone"))
		}
	}

	return map[string]any{
		"name":     ac.ID,
		"uuid":     ac.UUID,
		"devices":  devices,
		"state":    ac.State.String(),
		"default":  ac.Default,
		"default6": ac.Default6,
		k.key("specificObjectPath", "specific-object-path"): ac.SpecificObject,
		"vpn":                              ac.Vpn,
		k.key("conPath", "con-path"):       ac.Connection,
		"zone":                             zone,
		k.key("masterPath", "master-path"): ac.Master,
		k.key("dbusPath", "dbus-path"):     ac.Path,
	}
}

func (m *Manager) ipSection(ctx context.Context, path string, v6 bool, k keyer) (map[string]any, error) {
	addresses := []nm.Address{}
	routes := []map[string]any{}
	out := map[string]any{
		k.key("addressData", "address-data"): addresses,
		"domains":                            []string{},
		"gateway":                            nil,
		"dns":                                []string{},
		k.key("routeData", "route-data"):     routes,
	}
	if k {
		out["addresses"] = []string{}
		out["routes"] = []string{}
	}
	if path == "" {
		return out, nil
	}

	cfg, err := m.client.IPConfig(ctx, path, v6)
	if err != nil {
		return nil, err
	}

	if cfg.Addresses != nil {
		out[k.key("addressData", "address-data")] = cfg.Addresses
	}
	if cfg.Domains != nil {
		out["domains"] = cfg.Domains
	}
	out["gateway"] = nullIfEmpty(cfg.Gateway)
	if cfg.Nameservers != nil {
		out["dns"] = cfg.Nameservers
	}
	for _, r := range cfg.Routes {
		routes = append(routes, map[string]any{
			"dest":                       r.Dest,
			"prefix":                     r.Prefix,
			k.key("nextHop", "next-hop"): nullIfEmpty(r.NextHop),
			"metric":                     r.Metric,
		})
	}
	out[k.key("routeData", "route-data")] = routes

	if k {
		legacyAddrs := make([]string, 0, len(cfg.Addresses))
		for _, a := range cfg.Addresses {
			legacyAddrs = append(legacyAddrs, formatPrefix(a.Address, a.Prefix))
		}
		legacyRoutes := make([]string, 0, len(cfg.Routes))
		for _, r := range cfg.Routes {
			legacyRoutes = append(legacyRoutes, formatRoute(r))
		}
		out["addresses"] = legacyAddrs
		out["routes"] = legacyRoutes
	}
	return out, nil
}

// dhcpSection renders DHCP options: a map in legacy mode, otherwise a list
// of {option, value} sorted by option name. Read failures give no options.
func (m *Manager) dhcpSection(ctx context.Context, path string, v6 bool, k keyer) map[string]any {
	var opts map[string]string
	if path != "" {
		if cfg, err := m.client.DHCPConfig(ctx, path, v6); err == nil {
			opts = cfg.Options
		}
	}
	if k {
		legacy := make(map[string]string, len(opts))
		for name, v := range opts {
			legacy[name] = v
		}
		return map[string]any{"options": legacy}
	}
	list := make([]map[string]string, 0, len(opts))
	for _, name := range slices.Sorted(maps.Keys(opts)) {
		list = append(list, map[string]string{"option": name, "value": opts[name]})
	}
	return map[string]any{"options": list}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatPrefix(addr string, prefix uint32) string {
	return fmt.Sprintf("%s/%d", addr, prefix)
}

func formatRoute(r nm.Route) string {
	s := formatPrefix(r.Dest, r.Prefix)
	if r.NextHop != "" {
		s += " via " + r.NextHop
	}
	return fmt.Sprintf("%s metric %d", s, r.Metric)
}
