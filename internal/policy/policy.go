// Package policy defines the extraction policies run against every document.
package policy

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Ordering describes how a policy orders its rows.
type Ordering string

const (
	// Ranked rows are one per substance, most prominent first.
	Ranked Ordering = "ranked"
	// Combinatorial rows are one per substance, use case and concentration.
	Combinatorial Ordering = "combinatorial"
)

// Policy names.
const (
	NameProminence = "prominence"
	NameExhaustive = "exhaustive"
)

//go:embed prompts/prominence.txt
var prominencePrompt string

//go:embed prompts/exhaustive.txt
var exhaustivePrompt string

// Policy is a named instruction given to the analysis engine.
type Policy struct {
	Name     string
	Prompt   string
	Ordering Ordering
}

// Prominence returns the ranked, deduplicated policy.
func Prominence() Policy {
	return Policy{Name: NameProminence, Prompt: strings.TrimSpace(prominencePrompt), Ordering: Ranked}
}

// Exhaustive returns the one-row-per-combination policy.
func Exhaustive() Policy {
	return Policy{Name: NameExhaustive, Prompt: strings.TrimSpace(exhaustivePrompt), Ordering: Combinatorial}
}

// Defaults returns the policies in run order.
func Defaults() []Policy {
	return []Policy{Prominence(), Exhaustive()}
}

// Select returns the entries of policies named in names, keeping run
// order. An empty names list selects all of them.
func Select(policies []Policy, names []string) ([]Policy, error) {
	if len(names) == 0 {
		return policies, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if !hasName(policies, n) {
			return nil, eris.Errorf("policy: unknown policy %q", n)
		}
		want[n] = true
	}
	var out []Policy
	for _, p := range policies {
		if want[p.Name] {
			out = append(out, p)
		}
	}
	return out, nil
}

func hasName(policies []Policy, name string) bool {
	for _, p := range policies {
		if p.Name == name {
			return true
		}
	}
	return false
}

// overrideFile is the on-disk shape of a prompt override file:
//
//	policies:
//	  prominence:
//	    prompt: |
//	      ...
type overrideFile struct {
	Policies map[string]struct {
		Prompt string `yaml:"prompt"`
	} `yaml:"policies"`
}

// LoadFile returns the default policies with prompts replaced by those in the
// YAML file at path. Names not listed keep their built-in prompt.
func LoadFile(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read overrides %s", path)
	}

	var f overrideFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "policy: parse overrides")
	}

	policies := Defaults()
	known := make(map[string]int, len(policies))
	for i, p := range policies {
		known[p.Name] = i
	}
	for name, o := range f.Policies {
		i, ok := known[name]
		if !ok {
			return nil, eris.Errorf("policy: override for unknown policy %q", name)
		}
		if prompt := strings.TrimSpace(o.Prompt); prompt != "" {
			policies[i].Prompt = prompt
		}
	}
	return policies, nil
}
