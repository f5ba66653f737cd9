package metrics

import (
	"os"
	"strings"
)

// Feature names accepted by METRICS_DISABLED as a comma-separated list.
type Feature string

const (
	FeatureChannelSize Feature = "channel_size"
	FeatureDrops       Feature = "drops"
)

// IsFeatureEnabled reports whether a metrics feature is active. Features
// default to on; METRICS_DISABLED=channel_size,drops turns them off.
func IsFeatureEnabled(f Feature) bool {
	disabled := os.Getenv("METRICS_DISABLED")
	if disabled == "" {
		return true
	}
	for _, name := range strings.Split(disabled, ",") {
		if strings.TrimSpace(name) == string(f) {
			return false
		}
	}
	return true
}
