package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the admin server that serves health checks and metrics.
type ObservabilityConfig struct {
	Port    string        `envconfig:"PORT" default:"9090"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`

	// ExposeRegistry adds the default, background and registered grouping config
	// ids to the readiness response.
	ExposeRegistry bool `envconfig:"EXPOSE_REGISTRY" default:"true"`
}

// Validate checks the port and that the three endpoints are distinct absolute paths.
func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	seen := make(map[string]string, 3)
	for _, p := range []struct{ name, path string }{
		{"liveness", o.LivenessPath},
		{"readiness", o.ReadinessPath},
		{"metrics", o.MetricsPath},
	} {
		if !strings.HasPrefix(p.path, "/") {
			return fmt.Errorf("observability %s path %q must start with '/'", p.name, p.path)
		}
		if other, dup := seen[p.path]; dup {
			return fmt.Errorf("observability %s and %s paths are both %q", other, p.name, p.path)
		}
		seen[p.path] = p.name
	}
	return nil
}
