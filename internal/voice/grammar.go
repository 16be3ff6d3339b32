package voice

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yml
var builtinGrammar []byte

type intentGroup struct {
	Intent   Intent   `yaml:"intent"`
	Patterns []string `yaml:"patterns"`
	Examples []string `yaml:"examples"`
	Keywords []string `yaml:"keywords"`
}

type grammar struct {
	Intents    []intentGroup       `yaml:"intents"`
	Vocabulary map[string][]string `yaml:"vocabulary"`
}

func (g grammar) keywords() map[Intent][]string {
	out := make(map[Intent][]string, len(g.Intents))
	for _, grp := range g.Intents {
		out[grp.Intent] = append(out[grp.Intent], grp.Keywords...)
	}
	return out
}

func loadGrammar(data []byte) (grammar, error) {
	var g grammar
	if err := yaml.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("parse command grammar: %w", err)
	}
	for _, grp := range g.Intents {
		if !grp.Intent.Valid() {
			return g, fmt.Errorf("command grammar: unknown intent %q", grp.Intent)
		}
	}
	return g, nil
}
