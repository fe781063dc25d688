package email

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
)

// AddressList holds one or more address entries. In JSON it accepts either a
// single string or an array of strings. Each entry may itself be an RFC 5322
// address list ("a@example.com, Bob <b@example.com>").
type AddressList []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (l *AddressList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("address list: %w", err)
		}
		*l = AddressList(many)
		return nil
	}

	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("address list: %w", err)
	}
	if one == "" {
		*l = nil
		return nil
	}
	*l = AddressList{one}
	return nil
}

// Empty reports whether the list carries no non-blank entry.
func (l AddressList) Empty() bool {
	for _, entry := range l {
		if strings.TrimSpace(entry) != "" {
			return false
		}
	}
	return true
}

// Addresses parses every entry and returns the flattened address list.
func (l AddressList) Addresses() ([]*mail.Address, error) {
	var result []*mail.Address
	for _, entry := range l {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", entry, err)
		}
		result = append(result, addrs...)
	}
	return result, nil
}

// Strings returns the bare addresses of every entry. Entries that cannot be
// parsed are returned trimmed as-is.
func (l AddressList) Strings() []string {
	result := make([]string, 0, len(l))
	for _, entry := range l {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(entry)
		if err != nil {
			// Fall back to simple comma split if RFC 5322 parsing fails
			for _, p := range strings.Split(entry, ",") {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					result = append(result, trimmed)
				}
			}
			continue
		}
		for _, addr := range addrs {
			result = append(result, addr.Address)
		}
	}
	return result
}

func parseAddress(raw string) (*mail.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty address")
	}
	return mail.ParseAddress(raw)
}
