package nm

// secretKeys lists, per setting group, the properties the backend treats as
// secrets: omitted from GetSettings and only returned by GetSecrets.
var secretKeys = map[string]map[string]bool{
	"802-11-wireless-security": {
		"psk":           true,
		"wep-key0":      true,
		"wep-key1":      true,
		"wep-key2":      true,
		"wep-key3":      true,
		"leap-password": true,
	},
	"802-1x": {
		"ca-cert-password":            true,
		"client-cert-password":        true,
		"password":                    true,
		"password-raw":                true,
		"phase2-ca-cert-password":     true,
		"phase2-client-cert-password": true,
		"phase2-private-key-password": true,
		"pin":                         true,
		"private-key-password":        true,
	},
	"gsm": {
		"password": true,
		"pin":      true,
	},
}

// IsSecret reports whether group.key is a secret property.
func IsSecret(group, key string) bool {
	return secretKeys[group][key]
}

// SecretGroups returns the setting groups that can carry secrets.
func SecretGroups() []string {
	return []string{"802-11-wireless-security", "802-1x", "gsm"}
}

// StripSecrets returns a copy of cs without secret properties.
func StripSecrets(cs ConnectionSettings) ConnectionSettings {
	out := cs.Clone()
	for group, props := range out {
		for key := range props {
			if IsSecret(group, key) {
				delete(props, key)
			}
		}
	}
	return out
}

// OnlySecrets returns the secret properties of one group of cs.
func OnlySecrets(cs ConnectionSettings, group string) ConnectionSettings {
	out := ConnectionSettings{group: {}}
	for key, v := range cs[group] {
		if IsSecret(group, key) {
			out[group][key] = v.Clone()
		}
	}
	return out
}
