package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs), max 15 chars
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Dangerous characters that should never appear in names handed to the shell or filesystem
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// MaxSSIDLength is the 802.11 limit on SSID octets.
const MaxSSIDLength = 32

// ValidateInterfaceName validates a network interface name
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}

	if len(name) > 15 {
		return fmt.Errorf("interface name too long (max 15 characters): %s", name)
	}

	if !interfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name: %s (must be alphanumeric with -_.)", name)
	}

	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("interface name contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateCertName validates a certificate file name. Only bare names are
// accepted; the certificate directory is fixed by configuration.
func ValidateCertName(name string) error {
	if name == "" {
		return fmt.Errorf("certificate name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("certificate name too long (max 255 characters)")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid certificate name: %s", name)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("certificate name must not contain a path: %s", name)
	}
	for _, char := range dangerousChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("certificate name contains dangerous character: %s", char)
		}
	}
	return nil
}

// ValidateSSID checks that an SSID fits in an 802.11 information element.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return fmt.Errorf("ssid cannot be empty")
	}
	if len(ssid) > MaxSSIDLength {
		return fmt.Errorf("ssid too long (max %d bytes)", MaxSSIDLength)
	}
	if !utf8.ValidString(ssid) {
		return fmt.Errorf("ssid is not valid UTF-8")
	}
	return nil
}

// ValidateIP validates a bare IP address of the given family (4 or 6, 0 for either).
func ValidateIP(s string, family int) error {
	ip := net.ParseIP(s)
	if ip == nil {
		return fmt.Errorf("invalid IP address: %s", s)
	}
	is4 := ip.To4() != nil
	switch {
	case family == 4 && !is4:
		return fmt.Errorf("not an IPv4 address: %s", s)
	case family == 6 && is4:
		return fmt.Errorf("not an IPv6 address: %s", s)
	}
	return nil
}

// ValidatePrefix validates a prefix length for the given family.
func ValidatePrefix(prefix int64, family int) error {
	max := int64(32)
	if family == 6 {
		max = 128
	}
	if prefix < 0 || prefix > max {
		return fmt.Errorf("invalid prefix length: %d (must be 0-%d)", prefix, max)
	}
	return nil
}

// ValidateMAC validates a hardware address in colon notation.
func ValidateMAC(s string) error {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return fmt.Errorf("invalid MAC address: %s", s)
	}
	if len(hw) != 6 {
		return fmt.Errorf("invalid MAC address length: %s", s)
	}
	return nil
}

// ValidateAllowlist checks that value is one of allowed.
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s", value)
}
