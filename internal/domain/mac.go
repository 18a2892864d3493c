package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidMAC indicates a string could not be parsed as a MAC address.
var ErrInvalidMAC = errors.New("domain: invalid MAC address")

// Broadcast is the all-ones 802.11 broadcast address.
const Broadcast = "ff:ff:ff:ff:ff:ff"

// MAC is a canonical, lowercase colon-hex 48-bit address. The zero value is
// not a valid MAC; always construct through ParseMAC.
type MAC struct {
	raw net.HardwareAddr
}

// ParseMAC normalizes and validates a MAC address string. Accepts
// colon-, dash-, or dot-separated hex as well as bare 12-hex-digit forms.
func ParseMAC(s string) (MAC, error) {
	if s == "" {
		return MAC{}, ErrInvalidMAC
	}
	normalized := strings.NewReplacer("-", ":").Replace(s)
	if !strings.Contains(normalized, ":") && len(normalized) == 12 {
		var parts []string
		for i := 0; i < len(normalized); i += 2 {
			parts = append(parts, normalized[i:i+2])
		}
		normalized = strings.Join(parts, ":")
	}
	hw, err := net.ParseMAC(normalized)
	if err != nil || len(hw) != 6 {
		return MAC{}, fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	return MAC{raw: hw}, nil
}

// String returns the canonical lowercase colon-hex form.
func (m MAC) String() string {
	return strings.ToLower(m.raw.String())
}

// OUI returns the first three octets as upper-case colon-hex, e.g. "AA:BB:CC".
func (m MAC) OUI() string {
	if len(m.raw) < 3 {
		return ""
	}
	return fmt.Sprintf("%02X:%02X:%02X", m.raw[0], m.raw[1], m.raw[2])
}

// IsBroadcast reports whether this is the all-ones 802.11 broadcast address.
func (m MAC) IsBroadcast() bool {
	return m.String() == Broadcast
}

// IsMulticast reports whether bit 0 of the first octet (the I/G bit) is set.
func (m MAC) IsMulticast() bool {
	return len(m.raw) > 0 && m.raw[0]&0x01 != 0
}

// IsLocallyAdministered reports whether bit 1 of the first octet (the U/L
// bit) is set, i.e. the address was assigned/randomized rather than burned
// in by a manufacturer.
func (m MAC) IsLocallyAdministered() bool {
	return len(m.raw) > 0 && m.raw[0]&0x02 != 0
}

// IsValid reports whether the MAC holds a parsed address.
func (m MAC) IsValid() bool {
	return len(m.raw) == 6
}
