package config

import (
	"slices"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked, for
// logging.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	sanitized.Cluster.Services = slices.Clone(cfg.Cluster.Services)
	for i := range sanitized.Cluster.Services {
		s := &sanitized.Cluster.Services[i]
		if s.SecretHash != "" {
			s.SecretHash = maskSecret(s.SecretHash)
		}
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
