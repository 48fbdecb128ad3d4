package httpapi

import (
	"time"

	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/store"
)

// GroupingResponse is the result of grouping one event.
type GroupingResponse struct {
	ProjectID int64 `json:"project_id"`

	// Config is the primary configuration the hashes were computed with.
	Config groupingconfig.GroupingConfig `json:"grouping_config"`

	Hashes   []string                  `json:"hashes"`
	Variants map[string]map[string]any `json:"variants"`

	// Title and Fingerprint reflect server-side fingerprinting.
	Title       string   `json:"title,omitempty"`
	Fingerprint []string `json:"fingerprint,omitempty"`

	SecondaryConfig *groupingconfig.GroupingConfig `json:"secondary_grouping_config,omitempty"`
	SecondaryHashes []string                       `json:"secondary_hashes,omitempty"`
}

func newGroupingResponse(r *grouper.Result) GroupingResponse {
	resp := GroupingResponse{
		ProjectID:       r.ProjectID,
		Config:          r.Config,
		Hashes:          r.Hashes,
		Variants:        grouping.AsDicts(r.Variants),
		SecondaryConfig: r.SecondaryConfig,
		SecondaryHashes: r.SecondaryHashes,
	}
	if r.Event != nil {
		resp.Title = r.Event.Title
		resp.Fingerprint = r.Event.Fingerprint
	}
	if resp.Hashes == nil {
		resp.Hashes = []string{}
	}
	return resp
}

// ConfigurationsResponse lists the registered grouping configurations.
type ConfigurationsResponse struct {
	Data []grouper.ConfigurationInfo `json:"data"`
}

// OptionsResponse lists the options of a project.
type OptionsResponse struct {
	ProjectID int64             `json:"project_id"`
	Options   map[string]string `json:"options"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

func newOptionsResponse(opts *store.ProjectOptions) OptionsResponse {
	resp := OptionsResponse{ProjectID: opts.ProjectID, Options: opts.Values}
	if resp.Options == nil {
		resp.Options = map[string]string{}
	}
	if !opts.UpdatedAt.IsZero() {
		updated := opts.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// SetOptionRequest is the payload of PUT /options/{key}.
type SetOptionRequest struct {
	Value string `json:"value"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`
}
