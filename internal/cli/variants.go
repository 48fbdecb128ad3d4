package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/grouper/internal/config"
	"github.com/rafaeljc/grouper/internal/grouper"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/groupingconfig"
	"github.com/rafaeljc/grouper/internal/store"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// localProjectID is the project the CLI stores its flag-provided options under.
const localProjectID = 1

// VariantsOptions holds the flags of the variants command.
type VariantsOptions struct {
	ConfigID          string
	SecondaryConfigID string
	EnhancementsFile  string
	RulesFile         string
	NoCustomTitle     bool
}

// VariantsResult is the JSON payload of the variants command.
type VariantsResult struct {
	EventID         string                    `json:"event_id"`
	Config          string                    `json:"config"`
	Title           string                    `json:"title,omitempty"`
	Fingerprint     []string                  `json:"fingerprint,omitempty"`
	Hashes          []string                  `json:"hashes"`
	Variants        map[string]map[string]any `json:"variants"`
	SecondaryConfig string                    `json:"secondary_config,omitempty"`
	SecondaryHashes []string                  `json:"secondary_hashes,omitempty"`
}

// NewVariantsCommand creates the variants command.
func NewVariantsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VariantsOptions{}

	cmd := &cobra.Command{
		Use:   "variants <event.json|->",
		Short: "Compute grouping variants and hashes for an event",
		Long: `Compute the grouping variants and hashes of an event file.

Project grouping options are given as flags. Server-side fingerprinting rules
run before grouping, exactly as for ingested events.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariants(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigID, "config", "c", strategy.DefaultID(), "grouping config id")
	cmd.Flags().StringVar(&opts.SecondaryConfigID, "secondary-config", "", "also compute hashes with this config")
	cmd.Flags().StringVarP(&opts.EnhancementsFile, "enhancements", "e", "", "file with project enhancement rules")
	cmd.Flags().StringVarP(&opts.RulesFile, "fingerprinting", "f", "", "file with project fingerprinting rules")
	cmd.Flags().BoolVar(&opts.NoCustomTitle, "no-custom-title", false, "ignore title attributes of fingerprinting rules")

	return cmd
}

func runVariants(cmd *cobra.Command, rootOpts *RootOptions, opts *VariantsOptions, path string) error {
	out := newFormatter(cmd, rootOpts)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ev, err := loadEvent(path, cmd.InOrStdin())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, "cannot load event", err)
	}
	out.VerboseLog("loaded event %s from %s", ev.EventID, path)

	svc, err := localService(ctx, opts)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return out.Fail(exitErr.Code, ErrCodeConfig, exitErr.Message, exitErr.Err)
		}
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid options", err)
	}

	result, err := svc.GroupEvent(ctx, localProjectID, ev)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGroupingFail, "grouping failed", err)
	}

	res := VariantsResult{
		EventID:     ev.EventID,
		Config:      result.Config.ID,
		Title:       ev.Title,
		Fingerprint: ev.Fingerprint,
		Hashes:      result.Hashes,
		Variants:    grouping.AsDicts(result.Variants),
	}
	if result.SecondaryConfig != nil {
		res.SecondaryConfig = result.SecondaryConfig.ID
		res.SecondaryHashes = result.SecondaryHashes
	}

	return out.Success(res, func(w io.Writer) { renderVariants(w, res) })
}

// localService builds a grouping service over an in-memory project carrying the flag options.
func localService(ctx context.Context, opts *VariantsOptions) (*grouper.Service, error) {
	enhancements, err := loadText(opts.EnhancementsFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot read enhancements", err)
	}
	rules, err := loadText(opts.RulesFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot read fingerprinting rules", err)
	}

	repo := store.NewMemoryStore()
	svc := grouper.NewService(repo, nil, &config.GroupingConfig{
		DefaultConfigID:  strategy.DefaultID(),
		AllowCustomTitle: !opts.NoCustomTitle,
	})

	options := map[string]string{
		groupingconfig.OptionGroupingConfig:       opts.ConfigID,
		groupingconfig.OptionGroupingEnhancements: enhancements,
		groupingconfig.OptionFingerprintingRules:  rules,
	}
	if opts.SecondaryConfigID != "" {
		options[groupingconfig.OptionSecondaryGroupingConfig] = opts.SecondaryConfigID
		options[groupingconfig.OptionSecondaryGroupingExpiry] = strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	}

	for _, key := range slices.Sorted(maps.Keys(options)) {
		value := options[key]
		if value == "" {
			continue
		}
		if err := svc.SetProjectOption(ctx, localProjectID, key, value); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", key), err)
		}
	}
	return svc, nil
}

func renderVariants(w io.Writer, res VariantsResult) {
	fmt.Fprintf(w, "event:   %s\n", res.EventID)
	fmt.Fprintf(w, "config:  %s\n", res.Config)
	if res.Title != "" {
		fmt.Fprintf(w, "title:   %s\n", res.Title)
	}
	if len(res.Fingerprint) > 0 {
		fmt.Fprintf(w, "fingerprint: %v\n", res.Fingerprint)
	}
	fmt.Fprintln(w, "hashes:")
	for _, h := range res.Hashes {
		fmt.Fprintf(w, "  %s\n", h)
	}

	fmt.Fprintln(w, "variants:")
	for _, key := range slices.Sorted(maps.Keys(res.Variants)) {
		v := res.Variants[key]
		hash, _ := v["hash"].(string)
		if hash == "" {
			hash = "-"
		}
		fmt.Fprintf(w, "  %-22s %-32s contributes=%v", key, hash, v["contributes"])
		if hint, _ := v["hint"].(string); hint != "" {
			fmt.Fprintf(w, " (%s)", hint)
		}
		fmt.Fprintln(w)
	}

	if res.SecondaryConfig != "" {
		fmt.Fprintf(w, "secondary %s:\n", res.SecondaryConfig)
		for _, h := range res.SecondaryHashes {
			fmt.Fprintf(w, "  %s\n", h)
		}
	}
}
