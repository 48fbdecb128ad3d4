package enhancer

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/maypok86/otter"
)

type wireMatcher struct {
	Key     string `cbor:"1,keyasint"`
	Pattern string `cbor:"2,keyasint"`
	Negated bool   `cbor:"3,keyasint,omitempty"`
}

type wireRule struct {
	Matchers []wireMatcher `cbor:"1,keyasint"`
	Actions  []string      `cbor:"2,keyasint"`
}

type wireEnhancements struct {
	Version int        `cbor:"1,keyasint"`
	Bases   []string   `cbor:"2,keyasint"`
	Rules   []wireRule `cbor:"3,keyasint"`
}

const loadedCapacity = 1024

var (
	encMode = mustEncMode()

	zstdEncoder = mustZstdEncoder()
	zstdDecoder = mustZstdDecoder()

	loaded = mustLoadedCache()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("enhancer: cbor enc mode: %v", err))
	}
	return em
}

func mustZstdEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("enhancer: zstd encoder: %v", err))
	}
	return enc
}

func mustZstdDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("enhancer: zstd decoder: %v", err))
	}
	return dec
}

func mustLoadedCache() otter.Cache[string, *Enhancements] {
	c, err := otter.MustBuilder[string, *Enhancements](loadedCapacity).Build()
	if err != nil {
		panic(fmt.Sprintf("enhancer: loaded cache: %v", err))
	}
	return c
}

// Dumps serializes the rule set into its opaque, URL-safe blob form.
// Equal rule sets produce equal blobs.
func (e *Enhancements) Dumps() (string, error) {
	w := wireEnhancements{
		Version: e.Version,
		Bases:   e.Bases,
		Rules:   make([]wireRule, 0, len(e.Rules)),
	}
	for i := range e.Rules {
		rule := &e.Rules[i]
		wr := wireRule{Matchers: make([]wireMatcher, 0, len(rule.Matchers))}
		for _, m := range rule.Matchers {
			wr.Matchers = append(wr.Matchers, wireMatcher{Key: m.Key, Pattern: m.Pattern, Negated: m.Negated})
		}
		for _, a := range rule.Actions {
			wr.Actions = append(wr.Actions, a.String())
		}
		w.Rules = append(w.Rules, wr)
	}

	raw, err := encMode.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode enhancements: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(zstdEncoder.EncodeAll(raw, nil)), nil
}

// Loads restores a rule set from a blob produced by Dumps.
// Results are memoized per blob; the returned value must not be modified.
func Loads(blob string) (*Enhancements, error) {
	if e, ok := loaded.Get(blob); ok {
		return e, nil
	}

	e, err := decode(blob)
	if err != nil {
		return nil, err
	}
	loaded.Set(blob, e)
	return e, nil
}

func decode(blob string) (*Enhancements, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode enhancements: %w", err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress enhancements: %w", err)
	}

	var w wireEnhancements
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshal enhancements: %w", err)
	}
	if w.Version != LatestVersion {
		return nil, fmt.Errorf("unsupported enhancements version %d", w.Version)
	}

	rules := make([]Rule, 0, len(w.Rules))
	for _, wr := range w.Rules {
		var rule Rule
		for _, wm := range wr.Matchers {
			m, err := newMatcher(wm.Key, wm.Pattern, wm.Negated)
			if err != nil {
				return nil, fmt.Errorf("restore enhancements: %w", err)
			}
			rule.Matchers = append(rule.Matchers, m)
		}
		for _, token := range wr.Actions {
			a, err := parseAction(token)
			if err != nil {
				return nil, fmt.Errorf("restore enhancements: %w", err)
			}
			rule.Actions = append(rule.Actions, a)
		}
		rules = append(rules, rule)
	}
	return build(w.Bases, rules)
}
