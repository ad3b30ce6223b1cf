// Package faultrecovery implements the fault recovery executor (spec
// component C10): it subscribes to the fault topic, matches each event
// against a configured rule list, and on an "action=restart" match writes a
// marker file and hands the rule's exit code to the RestartRequester.
package faultrecovery

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wxzhao/workstation/internal/wire"
)

// Rule mirrors FaultRecoveryRule from spec.md §3. Empty MatchFault/
// MatchService/Severities act as wildcards.
type Rule struct {
	MatchFault   string   `yaml:"match_fault"`
	MatchService string   `yaml:"match_service"`
	Severities   []string `yaml:"severities"`
	Action       string   `yaml:"action"`
	ExitCode     int      `yaml:"exit_code"`
	MarkerFile   string   `yaml:"marker_file"`
}

// Matches reports whether ev satisfies rule's (possibly wildcard) fields.
func (r Rule) Matches(ev wire.FaultEvent) bool {
	if r.MatchFault != "" && r.MatchFault != ev.Fault {
		return false
	}
	if r.MatchService != "" && r.MatchService != ev.Service {
		return false
	}
	if len(r.Severities) > 0 {
		found := false
		for _, s := range r.Severities {
			if strings.EqualFold(s, string(ev.Severity)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// rulesFile is the on-disk shape: a YAML list of rules, each giving its
// severities as one CSV string in "severity" (a YAML list of severities is
// not read) (spec.md §4.10: "rules can be listed as a CSV of severities
// sharing the other fields").
type rulesFile struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	MatchFault      string `yaml:"match_fault"`
	MatchService    string `yaml:"match_service"`
	Severity        string `yaml:"severity"`
	Action          string `yaml:"action"`
	ExitCode        int    `yaml:"exit_code"`
	MarkerFile      string `yaml:"marker_file"`
}

// LoadRules reads a YAML rules file. A missing file is not an error: it
// yields an empty rule list (no automatic restarts configured).
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, d := range doc.Rules {
		var severities []string
		if d.Severity != "" {
			for _, s := range strings.Split(d.Severity, ",") {
				s = strings.TrimSpace(s)
				if s != "" {
					severities = append(severities, s)
				}
			}
		}
		rules = append(rules, Rule{
			MatchFault:   d.MatchFault,
			MatchService: d.MatchService,
			Severities:   severities,
			Action:       d.Action,
			ExitCode:     d.ExitCode,
			MarkerFile:   d.MarkerFile,
		})
	}
	return rules, nil
}
