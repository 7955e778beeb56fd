package leadgen

import (
	"strings"
	"unicode"
)

// ParseAddress pulls the city and state out of a formatted Indian address
// such as "12 SV Road, Andheri West, Mumbai, Maharashtra 400058, India".
// Either value is "" when the address is too short to tell.
func ParseAddress(addr string) (city, state string) {
	var parts []string
	for _, p := range strings.Split(addr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if n := len(parts); n > 0 && strings.EqualFold(parts[n-1], "india") {
		parts = parts[:n-1]
	}
	if len(parts) < 2 {
		return "", ""
	}

	state = stripPostalCode(parts[len(parts)-1])
	city = stripPostalCode(parts[len(parts)-2])
	return city, state
}

// stripPostalCode removes a trailing six-digit PIN code.
func stripPostalCode(s string) string {
	fields := strings.Fields(s)
	if n := len(fields); n > 0 && isPIN(fields[n-1]) {
		fields = fields[:n-1]
	}
	return strings.Join(fields, " ")
}

func isPIN(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
