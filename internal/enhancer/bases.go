package enhancer

import (
	"fmt"
	"sort"
)

// baseRuleSets are the built-in rule sets a configuration can build on.
var baseRuleSets = map[string]string{
	"legacy:2019-03-12": `
family:javascript path:**/node_modules/** -app
`,
	"newstyle:2019-10-29": `
family:javascript path:**/node_modules/** -app
family:javascript path:webpack:///webpack/** -app -group
family:native package:/usr/lib/** -app
family:native package:/system/library/** -app
family:native function:__* -group
`,
	"newstyle:2023-01-11": `
family:javascript path:**/node_modules/** -app
family:javascript path:webpack:///webpack/** -app -group
family:javascript path:**/*.min.js -group
family:native package:/usr/lib/** -app
family:native package:/system/library/** -app
family:native function:__* -group
family:native function:std::* -app
`,
	"mobile:2021-02-12": `
family:native package:/usr/lib/** -app
family:native package:/system/library/** -app
family:native package:**/*.app/frameworks/** -app
family:native function:__* -group
family:native function:objc_msgSend* -group
family:javascript path:**/node_modules/** -app
`,
}

var compiledBases = mustCompileBases()

func mustCompileBases() map[string][]Rule {
	out := make(map[string][]Rule, len(baseRuleSets))
	for name, raw := range baseRuleSets {
		rules, err := parseRules(raw)
		if err != nil {
			panic(fmt.Sprintf("enhancer: invalid base %q: %v", name, err))
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
