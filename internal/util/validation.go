package util

import (
	"regexp"
)

var providerNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,31}$`)

// IsValidProviderName reports whether s is a usable provider slug.
func IsValidProviderName(s string) bool {
	return providerNameRegex.MatchString(s)
}

func IsValidEnum(value string, validValues []string) bool {
	if value == "" {
		return true
	}
	for _, v := range validValues {
		if value == v {
			return true
		}
	}
	return false
}
