package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/grouper/internal/fingerprinting"
	"github.com/rafaeljc/grouper/internal/grouping"
	"github.com/rafaeljc/grouper/internal/strategy"
)

// FingerprintResult is the JSON payload of the fingerprint command.
type FingerprintResult struct {
	EventID           string         `json:"event_id"`
	Matched           bool           `json:"matched"`
	Fingerprint       []string       `json:"fingerprint"`
	ResolvedValues    []string       `json:"resolved_values"`
	Title             string         `json:"title,omitempty"`
	ClientFingerprint []string       `json:"client_fingerprint,omitempty"`
	MatchedRule       map[string]any `json:"matched_rule,omitempty"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		rulesFile string
		configID  string
	)

	cmd := &cobra.Command{
		Use:   "fingerprint <event.json|->",
		Short: "Show which fingerprinting rule matches an event",
		Long: `Apply server-side fingerprinting rules to an event and print the resulting
fingerprint. Built-in rules of the grouping config's bases are included.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)

			ev, err := loadEvent(args[0], cmd.InOrStdin())
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInput, "cannot load event", err)
			}

			tmpl, err := strategy.Lookup(configID)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeConfig, "unknown grouping config", err)
			}

			raw, err := loadText(rulesFile)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeInput, "cannot read rules", err)
			}
			rules, err := fingerprinting.Parse(raw, tmpl.FingerprintingBases)
			if err != nil {
				var invalid *fingerprinting.InvalidFingerprintingError
				if errors.As(err, &invalid) {
					return out.Fail(ExitFailure, ErrCodeRules, "invalid fingerprinting rules", err)
				}
				return out.Fail(ExitCommandError, ErrCodeConfig, "cannot compile rules", err)
			}

			fingerprinting.ApplyServerFingerprinting(ev, rules, true)

			fp := ev.Fingerprint
			if len(fp) == 0 {
				fp = grouping.DefaultFingerprint()
			}
			res := FingerprintResult{
				EventID:        ev.EventID,
				Fingerprint:    fp,
				ResolvedValues: grouping.ResolveFingerprintValues(fp, ev),
				Title:          ev.Title,
			}
			if info := ev.FingerprintInfo; info != nil {
				res.Matched = info.MatchedRule != nil
				res.MatchedRule = info.MatchedRule
				res.ClientFingerprint = info.ClientFingerprint
			}

			return out.Success(res, func(w io.Writer) {
				if res.Matched {
					fmt.Fprintf(w, "matched:     %v\n", res.MatchedRule["text"])
				} else {
					fmt.Fprintln(w, "matched:     (no rule)")
				}
				fmt.Fprintf(w, "fingerprint: %v\n", res.Fingerprint)
				fmt.Fprintf(w, "resolved:    %v\n", res.ResolvedValues)
				if res.Title != "" {
					fmt.Fprintf(w, "title:       %s\n", res.Title)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&rulesFile, "rules", "r", "", "file with fingerprinting rules")
	cmd.Flags().StringVarP(&configID, "config", "c", strategy.DefaultID(), "grouping config whose built-in bases apply")

	return cmd
}
