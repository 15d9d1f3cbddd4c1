package boards

import (
	"fmt"
	"strings"
)

// FQBN is a parsed fully-qualified board name.
type FQBN struct {
	Vendor       string
	Architecture string
	BoardID      string
	Options      []OptionPair // Configuration suffix, in declaration order
}

// OptionPair is one key=value entry of an fqbn configuration suffix.
type OptionPair struct {
	Key   string
	Value string
}

// ParseFQBN parses vendor:arch:boardId[:key=value,key=value].
func ParseFQBN(s string) (FQBN, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return FQBN{}, fmt.Errorf("invalid fqbn %q: expected vendor:architecture:boardId", s)
	}
	for i, p := range parts[:3] {
		if p == "" {
			return FQBN{}, fmt.Errorf("invalid fqbn %q: segment %d is empty", s, i)
		}
	}

	f := FQBN{Vendor: parts[0], Architecture: parts[1], BoardID: parts[2]}
	if len(parts) == 4 && parts[3] != "" {
		for _, entry := range strings.Split(parts[3], ",") {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || key == "" {
				return FQBN{}, fmt.Errorf("invalid fqbn %q: malformed option %q", s, entry)
			}
			f.Options = append(f.Options, OptionPair{Key: key, Value: value})
		}
	}
	return f, nil
}

// PlatformID returns vendor:architecture.
func (f FQBN) PlatformID() string {
	return f.Vendor + ":" + f.Architecture
}

// Sanitized returns the fqbn without configuration suffix.
func (f FQBN) Sanitized() string {
	return f.Vendor + ":" + f.Architecture + ":" + f.BoardID
}

// WithOptions returns a copy of f whose configuration suffix is replaced.
func (f FQBN) WithOptions(options []OptionPair) FQBN {
	out := f
	out.Options = append([]OptionPair(nil), options...)
	return out
}

func (f FQBN) String() string {
	if len(f.Options) == 0 {
		return f.Sanitized()
	}
	entries := make([]string, len(f.Options))
	for i, o := range f.Options {
		entries[i] = o.Key + "=" + o.Value
	}
	return f.Sanitized() + ":" + strings.Join(entries, ",")
}

// SanitizeFQBN strips any configuration suffix from s. Strings that are not
// well-formed fqbns are returned unchanged.
func SanitizeFQBN(s string) string {
	f, err := ParseFQBN(s)
	if err != nil {
		return s
	}
	return f.Sanitized()
}

// PlatformOf returns the vendor:architecture part of an fqbn, or "" if s is
// not a well-formed fqbn.
func PlatformOf(s string) string {
	f, err := ParseFQBN(s)
	if err != nil {
		return ""
	}
	return f.PlatformID()
}

// HasOptions reports whether s carries a configuration suffix.
func HasOptions(s string) bool {
	f, err := ParseFQBN(s)
	return err == nil && len(f.Options) > 0
}
