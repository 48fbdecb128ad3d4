package groupingconfig

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/rafaeljc/grouper/internal/enhancer"
	"github.com/rafaeljc/grouper/internal/fingerprinting"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// ErrInvalidOption is returned by ValidateOption for values that would be
// rejected or silently ignored at grouping time.
var ErrInvalidOption = errors.New("invalid project option")

// ValidateOption checks a grouping option before it is persisted. Loaders are
// lenient with stored values; this is the strict gate in front of them.
func ValidateOption(key, value string) error {
	switch key {
	case OptionGroupingConfig, OptionSecondaryGroupingConfig:
		if !strategy.IsValid(value) {
			return fmt.Errorf("%w: unknown grouping config %q", ErrInvalidOption, value)
		}
	case OptionSecondaryGroupingExpiry:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("%w: expiry must be a unix timestamp", ErrInvalidOption)
		}
	case OptionGroupingEnhancements:
		if _, err := enhancer.Parse(value, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
	case OptionFingerprintingRules:
		if _, err := fingerprinting.Parse(value, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOption, err)
		}
	default:
		return fmt.Errorf("%w: unknown option %q", ErrInvalidOption, key)
	}
	return nil
}

// OptionKeys lists the options understood by ValidateOption.
func OptionKeys() []string {
	return []string{
		OptionGroupingConfig,
		OptionSecondaryGroupingConfig,
		OptionSecondaryGroupingExpiry,
		OptionGroupingEnhancements,
		OptionFingerprintingRules,
	}
}
