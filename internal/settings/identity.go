package settings

import "grimm.is/halyard/internal/nm"

// Identity is the subset of the connection group that names a profile.
type Identity struct {
	ID            string `json:"id,omitempty"`
	UUID          string `json:"uuid,omitempty"`
	Type          string `json:"type,omitempty"`
	InterfaceName string `json:"interface-name,omitempty"`
}

// IdentityOf reads the identity of backend settings.
func IdentityOf(cs nm.ConnectionSettings) Identity {
	p := nm.Properties(cs[GroupConnection])
	return Identity{
		ID:            p.String("id"),
		UUID:          p.String("uuid"),
		Type:          p.String("type"),
		InterfaceName: p.String("interface-name"),
	}
}

// IdentityOfDocument reads the identity of a JSON document. Non-string
// values are treated as absent; the codec reports them.
func IdentityOfDocument(doc Document) Identity {
	g := doc[GroupConnection]
	str := func(k string) string {
		s, _ := g[k].(string)
		return s
	}
	return Identity{
		ID:            str("id"),
		UUID:          str("uuid"),
		Type:          str("type"),
		InterfaceName: str("interface-name"),
	}
}

// WirelessMode returns 802-11-wireless.mode, or "" when unset.
func WirelessMode(cs nm.ConnectionSettings) string {
	return nm.Properties(cs[GroupWireless]).String("mode")
}
