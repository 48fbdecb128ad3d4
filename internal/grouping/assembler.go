package grouping

import (
	"errors"
	"fmt"

	"github.com/rafaeljc/grouper/internal/event"
)

var (
	// ErrConfigurationNotFound is returned for an unknown grouping configuration id.
	ErrConfigurationNotFound = errors.New("grouping config not found")

	// ErrMalformedConfig is returned when a configuration input violates its contract
	// (e.g. a serialized config without an id).
	ErrMalformedConfig = errors.New("malformed grouping configuration")
)

// Variant keys produced besides the per-kind component variants.
const (
	KeyChecksum           = "checksum"
	KeyHashedChecksum     = "hashed_checksum"
	KeyCustomFingerprint  = "custom_fingerprint"
	KeyBuiltInFingerprint = "built_in_fingerprint"
	KeyFallback           = "fallback"
)

// maxRawChecksumLength is the largest raw checksum that fits a hash row.
const maxRawChecksumLength = 32

const customFingerprintHint = "custom fingerprint takes precedence"

// StrategyConfiguration is a loaded grouping configuration. Evaluate runs its strategies
// in their declared order; errors it returns propagate to the caller unchanged.
type StrategyConfiguration interface {
	ID() string
	Enhancements() string
	Evaluate(ev *event.Event) ([]StrategyOutput, error)
}

// GetGroupingVariants computes every grouping variant of ev under cfg.
// The result always holds at least one contributing variant.
func GetGroupingVariants(ev *event.Event, cfg StrategyConfiguration) (map[string]Variant, error) {
	if ev.Checksum != "" {
		return checksumVariants(ev.Checksum), nil
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w: no strategy configuration", ErrMalformedConfig)
	}

	fingerprint := ev.Fingerprint
	if len(fingerprint) == 0 {
		fingerprint = DefaultFingerprint()
	}
	info := ev.FingerprintInfo
	defaults := DefaultsReferenced(fingerprint)

	outputs, err := cfg.Evaluate(ev)
	if err != nil {
		return nil, err
	}
	components := resolvePrecedence(outputs)

	variants := make(map[string]Variant, len(components)+1)
	switch {
	case defaults == 0:
		for kind, component := range components {
			component.Update(false, customFingerprintHint)
			variants[kind.String()] = &ComponentVariant{Component: component, Config: cfg}
		}

		custom := CustomFingerprintVariant{
			Values: ResolveFingerprintValues(fingerprint, ev),
			Info:   info,
		}
		if info.MatchedRuleIsBuiltin() {
			variants[KeyBuiltInFingerprint] = &BuiltInFingerprintVariant{CustomFingerprintVariant: custom}
		} else {
			variants[KeyCustomFingerprint] = &custom
		}

	case defaults == 1 && len(fingerprint) == 1:
		for kind, component := range components {
			variants[kind.String()] = &ComponentVariant{Component: component, Config: cfg}
		}

	default:
		salt := ResolveFingerprintValues(fingerprint, ev)
		for kind, component := range components {
			variants[kind.String()] = &SaltedComponentVariant{
				Values:    salt,
				Component: component,
				Config:    cfg,
				Info:      info,
			}
		}
	}

	if !anyContributes(variants) {
		variants[KeyFallback] = &FallbackVariant{}
	}
	return variants, nil
}

func checksumVariants(checksum string) map[string]Variant {
	if IsValidChecksum(checksum) {
		return map[string]Variant{KeyChecksum: &ChecksumVariant{Checksum: checksum}}
	}

	variants := map[string]Variant{
		KeyHashedChecksum: &HashedChecksumVariant{
			Checksum:    HashFromValues([]string{checksum}),
			RawChecksum: checksum,
		},
	}
	// Longer raw values would not fit a hash row; they still group via the hashed form.
	if len(checksum) <= maxRawChecksumLength {
		variants[KeyChecksum] = &ChecksumVariant{Checksum: checksum}
	}
	return variants
}

func anyContributes(variants map[string]Variant) bool {
	for _, v := range variants {
		if v.Contributes() {
			return true
		}
	}
	return false
}
