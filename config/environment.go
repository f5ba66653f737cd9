package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

// Canonical environment identifiers. APP_ENV values are folded onto these
// so the rest of the code only ever compares against three names.
const (
	EnvironmentDevelopment = "development"
	EnvironmentStaging     = "staging"
	EnvironmentProduction  = "production"
)

// Shorthand and historical misspellings seen in deployment manifests.
var environmentAliases = map[string]string{
	"prod":     EnvironmentProduction,
	"stag":     EnvironmentStaging,
	"stagging": EnvironmentStaging,
}

// AppEnvironment reads APP_ENV, normalises aliases, and defaults to
// development when unset. Unknown names pass through unchanged.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// IsProductionLike reports whether an environment should get production
// strictness. Staging counts, so configuration mistakes surface there
// before a production rollout.
func IsProductionLike(env string) bool {
	return env == EnvironmentProduction || env == EnvironmentStaging
}
