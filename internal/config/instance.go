package config

import (
	"fmt"
	"regexp"
)

// MaxInstanceLength bounds the instance name, which prefixes every
// persistence key and channel.
const MaxInstanceLength = 63

// instancePattern accepts lowercase alphanumerics with inner hyphens.
var instancePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstance checks that name is usable as a key namespace.
func ValidateInstance(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceLength)
	}
	if !instancePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}
