package fingerprinting

import (
	"slices"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
)

// ApplyServerFingerprinting runs rules against ev and records the outcome on it.
//
// A client fingerprint other than the lone default placeholder is captured into the
// fingerprint info. When a rule matches, the event fingerprint is replaced and, if
// allowCustomTitle is set and the rule has a title, the title is re-rendered. The
// fingerprint info stays nil when there was nothing to record.
func ApplyServerFingerprinting(ev *event.Event, rules *Rules, allowCustomTitle bool) {
	var info event.FingerprintInfo

	clientFingerprint := ev.Fingerprint
	if len(clientFingerprint) == 0 {
		clientFingerprint = grouping.DefaultFingerprint()
	}
	if !(len(clientFingerprint) == 1 && grouping.IsDefaultFingerprintVar(clientFingerprint[0])) {
		info.ClientFingerprint = slices.Clone(clientFingerprint)
	}

	if rules != nil {
		if m := rules.Match(ev); m != nil {
			ev.Fingerprint = m.Fingerprint
			if title, ok := m.Attributes["title"]; ok && allowCustomTitle {
				ev.Title = grouping.ExpandTitleTemplate(title, ev)
			}
			info.MatchedRule = m.Rule.ToJSON()
		}
	}

	if info.ClientFingerprint != nil || info.MatchedRule != nil {
		ev.FingerprintInfo = &info
	}
}
