package grouping

import (
	"slices"
	"sort"

	"github.com/rafaeljc/grouper/internal/event"
)

// Variant is one candidate grouping hash plus its contribution status and metadata.
type Variant interface {
	// Type is the stable variant type name (e.g. "component", "checksum").
	Type() string
	// Description is a human-readable label for display.
	Description() string
	// Contributes reports whether the variant produces a hash row.
	Contributes() bool
	// Hint explains why the variant does or does not contribute. May be empty.
	Hint() string
	// Hash returns the variant hash, or false when the variant does not contribute.
	Hash() (string, bool)
	// AsDict renders the variant for persistence and debugging display.
	AsDict() map[string]any
}

// FallbackHash is the constant hash used when nothing else contributes.
var FallbackHash = HashFromValues(nil)

func baseDict(v Variant, metadata map[string]any) map[string]any {
	var hash, hint any
	if h, ok := v.Hash(); ok {
		hash = h
	}
	if v.Hint() != "" {
		hint = v.Hint()
	}

	out := map[string]any{
		"type":        v.Type(),
		"description": v.Description(),
		"hash":        hash,
		"contributes": v.Contributes(),
		"hint":        hint,
	}
	for k, val := range metadata {
		out[k] = val
	}
	return out
}

// ChecksumVariant wraps a client checksum that is used verbatim as the hash.
type ChecksumVariant struct {
	Checksum string
}

func (v *ChecksumVariant) Type() string         { return "checksum" }
func (v *ChecksumVariant) Description() string  { return "legacy checksum" }
func (v *ChecksumVariant) Contributes() bool    { return true }
func (v *ChecksumVariant) Hint() string         { return "" }
func (v *ChecksumVariant) Hash() (string, bool) { return v.Checksum, true }

func (v *ChecksumVariant) AsDict() map[string]any {
	return baseDict(v, map[string]any{"checksum": v.Checksum})
}

// HashedChecksumVariant wraps a checksum that was not in hash format and had to be hashed.
type HashedChecksumVariant struct {
	Checksum    string
	RawChecksum string
}

func (v *HashedChecksumVariant) Type() string         { return "hashed_checksum" }
func (v *HashedChecksumVariant) Description() string  { return "hashed legacy checksum" }
func (v *HashedChecksumVariant) Contributes() bool    { return true }
func (v *HashedChecksumVariant) Hint() string         { return "" }
func (v *HashedChecksumVariant) Hash() (string, bool) { return v.Checksum, true }

func (v *HashedChecksumVariant) AsDict() map[string]any {
	return baseDict(v, map[string]any{
		"checksum":     v.Checksum,
		"raw_checksum": v.RawChecksum,
	})
}

// FallbackVariant guarantees that every event resolves to at least one hash.
type FallbackVariant struct{}

func (v *FallbackVariant) Type() string           { return "fallback" }
func (v *FallbackVariant) Description() string    { return "fallback grouping" }
func (v *FallbackVariant) Contributes() bool      { return true }
func (v *FallbackVariant) Hint() string           { return "" }
func (v *FallbackVariant) Hash() (string, bool)   { return FallbackHash, true }
func (v *FallbackVariant) AsDict() map[string]any { return baseDict(v, nil) }

// ComponentVariant wraps the composite component computed for one variant kind.
type ComponentVariant struct {
	Component *Component
	Config    StrategyConfiguration
}

func (v *ComponentVariant) Type() string         { return "component" }
func (v *ComponentVariant) Description() string  { return describeComponent(v.Component) }
func (v *ComponentVariant) Contributes() bool    { return v.Component.Contributes }
func (v *ComponentVariant) Hint() string         { return v.Component.Hint }
func (v *ComponentVariant) Hash() (string, bool) { return v.Component.Hash() }

func (v *ComponentVariant) AsDict() map[string]any {
	return baseDict(v, map[string]any{
		"component": v.Component.AsDict(),
		"config":    configDict(v.Config),
	})
}

// SaltedComponentVariant mixes custom fingerprint tokens into a component hash.
// Each default placeholder in Values is replaced in place by the component's values.
type SaltedComponentVariant struct {
	Values    []string
	Component *Component
	Config    StrategyConfiguration
	Info      *event.FingerprintInfo
}

func (v *SaltedComponentVariant) Type() string { return "salted_component" }

func (v *SaltedComponentVariant) Description() string {
	return "modified " + describeComponent(v.Component)
}

func (v *SaltedComponentVariant) Contributes() bool { return v.Component.Contributes }
func (v *SaltedComponentVariant) Hint() string      { return v.Component.Hint }

func (v *SaltedComponentVariant) Hash() (string, bool) {
	if !v.Component.Contributes {
		return "", false
	}
	var final []string
	for _, value := range v.Values {
		if IsDefaultFingerprintVar(value) {
			final = append(final, v.Component.IterValues()...)
			continue
		}
		final = append(final, value)
	}
	return HashFromValues(final), true
}

func (v *SaltedComponentVariant) AsDict() map[string]any {
	meta := fingerprintMetadata(v.Values, v.Info)
	meta["component"] = v.Component.AsDict()
	meta["config"] = configDict(v.Config)
	return baseDict(v, meta)
}

// CustomFingerprintVariant wraps a fingerprint that fully replaces the computed grouping.
type CustomFingerprintVariant struct {
	Values []string
	Info   *event.FingerprintInfo
}

func (v *CustomFingerprintVariant) Type() string         { return "custom_fingerprint" }
func (v *CustomFingerprintVariant) Description() string  { return "custom fingerprint" }
func (v *CustomFingerprintVariant) Contributes() bool    { return true }
func (v *CustomFingerprintVariant) Hint() string         { return "" }
func (v *CustomFingerprintVariant) Hash() (string, bool) { return HashFromValues(v.Values), true }

func (v *CustomFingerprintVariant) AsDict() map[string]any {
	return baseDict(v, fingerprintMetadata(v.Values, v.Info))
}

// BuiltInFingerprintVariant is a custom fingerprint produced by a built-in rule.
type BuiltInFingerprintVariant struct {
	CustomFingerprintVariant
}

func (v *BuiltInFingerprintVariant) Type() string        { return "built_in_fingerprint" }
func (v *BuiltInFingerprintVariant) Description() string { return "built-in fingerprint" }

func (v *BuiltInFingerprintVariant) AsDict() map[string]any {
	return baseDict(v, fingerprintMetadata(v.Values, v.Info))
}

func fingerprintMetadata(values []string, info *event.FingerprintInfo) map[string]any {
	meta := map[string]any{"values": slices.Clone(values)}
	if info == nil {
		return meta
	}
	if len(info.ClientFingerprint) > 0 {
		meta["client_values"] = slices.Clone(info.ClientFingerprint)
	}
	if info.MatchedRule != nil {
		meta["matched_rule"] = info.MatchedRule
	}
	return meta
}

func describeComponent(c *Component) string {
	kind, err := ParseKind(c.ID)
	if err != nil {
		return c.ID
	}
	return kind.description()
}

func configDict(cfg StrategyConfiguration) map[string]any {
	if cfg == nil {
		return nil
	}
	return map[string]any{
		"id":           cfg.ID(),
		"enhancements": cfg.Enhancements(),
	}
}

// Hashes returns the contributing hashes of variants, ordered by variant key and
// de-duplicated. This is the list a caller persists as hash rows.
func Hashes(variants map[string]Variant) []string {
	keys := make([]string, 0, len(variants))
	for k := range variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]struct{}, len(keys))
	hashes := make([]string, 0, len(keys))
	for _, k := range keys {
		h, ok := variants[k].Hash()
		if !ok {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}
	return hashes
}

// AsDicts renders every variant keyed by its variant name.
func AsDicts(variants map[string]Variant) map[string]map[string]any {
	out := make(map[string]map[string]any, len(variants))
	for k, v := range variants {
		out[k] = v.AsDict()
	}
	return out
}
