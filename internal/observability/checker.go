package observability

import "context"

// Checker is a dependency checked by the readiness endpoint. Check must honor ctx.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// RegistryInfo describes the grouping configurations a process serves.
type RegistryInfo struct {
	DefaultConfig    string   `json:"default_config"`
	BackgroundConfig string   `json:"background_config,omitempty"`
	Configs          []string `json:"configs"`
}

// RegistryReporter exposes the grouping registry on the readiness endpoint.
type RegistryReporter interface {
	Registry() RegistryInfo
}
