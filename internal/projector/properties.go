package projector

import (
	"log/slog"
	"strings"
)

// ParseBuildProperties folds "key=value" entries into a map. Entries are
// split on the first "=" so values may contain "=". Entries without a key
// are skipped and logged. The last duplicate wins.
func ParseBuildProperties(entries []string, logger *slog.Logger) map[string]string {
	if logger == nil {
		logger = slog.Default()
	}

	props := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			logger.Warn("skipping unparsable build property", "entry", entry)
			continue
		}
		props[key] = value
	}
	return props
}
