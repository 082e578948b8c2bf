package router

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Rule promotes a provider when its condition holds for a request.
// Conditions are boolean expressions over the variables `capability`,
// `chars`, and `user`, e.g.
//
//	when: capability == "vision" && chars > 2000
//	prefer: anthropic
type Rule struct {
	When   string `yaml:"when" json:"when"`
	Prefer string `yaml:"prefer" json:"prefer"`
}

type compiledRule struct {
	source  string
	prefer  string
	program *vm.Program
}

// RuleSet holds compiled routing rules, evaluated in order; the first
// matching rule wins.
type RuleSet struct {
	rules  []compiledRule
	logger *slog.Logger
}

// ruleEnv defines the variables available to rule expressions.
func ruleEnv(capability, user string, chars int) map[string]interface{} {
	return map[string]interface{}{
		"capability": capability,
		"chars":      chars,
		"user":       user,
	}
}

// CompileRules validates and compiles routing rules. A rule that names an
// unknown provider is rejected so misconfiguration surfaces at startup.
func CompileRules(rules []Rule, registry *Registry, logger *slog.Logger) (*RuleSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rs := &RuleSet{logger: logger}
	for i, rule := range rules {
		if rule.When == "" || rule.Prefer == "" {
			return nil, fmt.Errorf("routing rule %d: when and prefer are required", i)
		}
		if registry != nil && registry.Get(rule.Prefer) == nil {
			return nil, fmt.Errorf("routing rule %d: unknown provider %q", i, rule.Prefer)
		}
		program, err := expr.Compile(rule.When, expr.Env(ruleEnv("", "", 0)), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("routing rule %d: compile %q: %w", i, rule.When, err)
		}
		rs.rules = append(rs.rules, compiledRule{
			source:  rule.When,
			prefer:  rule.Prefer,
			program: program,
		})
	}
	return rs, nil
}

// Preferred evaluates the rules against a request and returns the provider
// named by the first matching rule, or empty. Evaluation errors skip the
// rule; routing must not fail on a bad rule at request time.
func (rs *RuleSet) Preferred(in SelectInput) string {
	env := ruleEnv(string(in.Capability), in.UserID, in.Chars)
	for _, rule := range rs.rules {
		result, err := expr.Run(rule.program, env)
		if err != nil {
			rs.logger.Warn("routing rule eval failed", "rule", rule.source, "error", err)
			continue
		}
		if matched, ok := result.(bool); ok && matched {
			return rule.prefer
		}
	}
	return ""
}
