package gateway

import (
	"fmt"
	"strings"
)

// NormalizePhone converts a Kenyan mobile number into the provider's
// expected international form: country-code-prefixed digits only, no
// leading "+" or "0". Accepts "0712345678", "+254712345678",
// "254712345678" and "712345678".
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	cleaned = strings.TrimPrefix(cleaned, "+")

	if cleaned == "" {
		return "", fmt.Errorf("phone number is required")
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone number must contain digits only")
		}
	}

	switch {
	case strings.HasPrefix(cleaned, "254"):
		// already international
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "254" + cleaned[1:]
	case len(cleaned) == 9:
		cleaned = "254" + cleaned
	default:
		return "", fmt.Errorf("unrecognized phone number format")
	}

	if len(cleaned) != 12 {
		return "", fmt.Errorf("phone number has wrong length")
	}
	return cleaned, nil
}
