package fingerprinting

import (
	"fmt"
	"sort"
)

// baseRuleSets are the built-in rule sets selected by grouping configurations.
var baseRuleSets = map[string]string{
	"javascript@2024-02-02": `
# chunk load errors
family:javascript type:ChunkLoadError -> chunkloaderror
family:javascript value:"ChunkLoadError*" -> chunkloaderror

# hydration errors
family:javascript tags.transaction:* message:"Hydration failed because the initial UI does not match what was rendered on the server*" -> hydrationerror, {{ tags.transaction }}
family:javascript tags.transaction:* message:"Text content does not match server-rendered HTML*" -> hydrationerror, {{ tags.transaction }}
family:javascript tags.transaction:* message:"There was an error while hydrating*" -> hydrationerror, {{ tags.transaction }}
`,
}

var compiledBases = mustCompileBases()

func mustCompileBases() map[string][]Rule {
	out := make(map[string][]Rule, len(baseRuleSets))
	for name, raw := range baseRuleSets {
		rules, err := parseRules(raw)
		if err != nil {
			panic(fmt.Sprintf("fingerprinting: invalid base %q: %v", name, err))
		}
		for i := range rules {
			rules[i].IsBuiltin = true
		}
		out[name] = rules
	}
	return out
}

func lookupBase(name string) ([]Rule, bool) {
	rules, ok := compiledBases[name]
	return rules, ok
}

// BaseNames lists the registered base rule sets.
func BaseNames() []string {
	names := make([]string, 0, len(compiledBases))
	for name := range compiledBases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
