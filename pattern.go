package rocketfilter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// PatternSet is a parsed list of path-pattern rules: a mix of pure
// gitignore-style patterns and glob+predicate pairs. See spec §4.1.
type PatternSet struct {
	rules   []*PatternRule
	matcher gitignore.Matcher

	cache sync.Map // string(path) -> *MatchedRule
}

// Empty reports whether the set has no rules at all.
func (p *PatternSet) Empty() bool {
	return p == nil || (len(p.rules) == 0 && p.matcher == nil)
}

// Rules returns the parsed rules in input order (pure patterns included,
// in the position their source line occupied).
func (p *PatternSet) Rules() []*PatternRule {
	if p == nil {
		return nil
	}
	return p.rules
}

// parsedLine is one logical rule parsed out of the input text, before its
// predicate (if any) is compiled.
type parsedLine struct {
	glob       string
	predicate  string // empty if pure pattern
	hasPredicate bool
	line       int
}

// splitPatternLines turns a pattern-block text into logical rules,
// expanding `{% ... %}` multiline bodies that span several physical lines.
// See spec §4.1.
func splitPatternLines(text string) ([]parsedLine, error) {
	physical := strings.Split(text, "\n")
	result := make([]parsedLine, 0, len(physical))

	for i := 0; i < len(physical); i++ {
		raw := physical[i]
		trimmed := strings.TrimSpace(raw)
		lineNo := i + 1

		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimLeft(raw, " \t"), "#") {
			continue
		}

		if idx := strings.Index(trimmed, "{%"); idx >= 0 {
			glob := strings.TrimSpace(trimmed[:idx])
			rest := trimmed[idx+2:]

			var body strings.Builder
			closed := false
			if end := strings.Index(rest, "%}"); end >= 0 {
				body.WriteString(rest[:end])
				closed = true
			} else {
				body.WriteString(rest)
				body.WriteString("\n")
				for i++; i < len(physical); i++ {
					line := physical[i]
					if end := strings.Index(line, "%}"); end >= 0 {
						body.WriteString(line[:end])
						closed = true
						break
					}
					body.WriteString(line)
					body.WriteString("\n")
				}
			}
			if !closed {
				return nil, &PatternParseError{
					Reason: "Expecting the end %} of multiline script",
					Line:   lineNo,
				}
			}
			result = append(result, parsedLine{
				glob:         glob,
				predicate:    strings.TrimSpace(body.String()),
				hasPredicate: true,
				line:         lineNo,
			})
			continue
		}

		if idx := strings.Index(trimmed, "=>"); idx >= 0 {
			result = append(result, parsedLine{
				glob:         strings.TrimSpace(trimmed[:idx]),
				predicate:    strings.TrimSpace(trimmed[idx+2:]),
				hasPredicate: true,
				line:         lineNo,
			})
			continue
		}

		result = append(result, parsedLine{glob: trimmed, line: lineNo})
	}

	return result, nil
}

// NewPatternSet parses a keep or remove pattern block. origin tags every
// rule parsed from text with the given polarity, domain scopes the pure
// gitignore patterns to a subdirectory (nil/empty for repo root), and host
// compiles any `=>`/`{% %}` predicate bodies encountered.
func NewPatternSet(text string, origin Polarity, domain []string, host PredicateHost) (*PatternSet, error) {
	lines, err := splitPatternLines(text)
	if err != nil {
		return nil, err
	}

	ps := &PatternSet{}
	var purePatterns []gitignore.Pattern

	for i, l := range lines {
		rule := &PatternRule{Glob: l.glob, Origin: origin, Index: i}

		if l.hasPredicate {
			if host == nil {
				return nil, &PatternParseError{
					Reason: fmt.Sprintf("rule %q has a predicate but no predicate host is configured", l.glob),
					Line:   l.line,
				}
			}
			name := fmt.Sprintf("pattern:%d:%s", l.line, l.glob)
			compiled, err := host.Compile(name, l.predicate)
			if err != nil {
				return nil, err
			}
			rule.Predicate = compiled
			rule.compiledGlob = gitignore.ParsePattern(l.glob, domain)
			ps.rules = append(ps.rules, rule)
			continue
		}

		ps.rules = append(ps.rules, rule)
		purePatterns = append(purePatterns, gitignore.ParsePattern(l.glob, domain))
	}

	if len(purePatterns) > 0 {
		ps.matcher = gitignore.NewMatcher(purePatterns)
	}

	return ps, nil
}

// Match implements spec §4.1's match(path) operation: scripted rules are
// tried first, in input order; a pure gitignore hit otherwise produces a
// synthetic no-predicate rule; no match otherwise. Results are memoised —
// first-writer-wins, coherent under concurrent readers (spec §5).
func (p *PatternSet) Match(path string) *MatchedRule {
	if p == nil {
		return nil
	}

	if cached, ok := p.cache.Load(path); ok {
		return cached.(*MatchedRule)
	}

	result := p.matchUncached(path)

	actual, _ := p.cache.LoadOrStore(path, result)
	return actual.(*MatchedRule)
}

func (p *PatternSet) matchUncached(path string) *MatchedRule {
	parts := strings.Split(path, "/")

	for _, r := range p.rules {
		if !r.HasPredicate() {
			continue
		}
		if res := r.compiledGlob.Match(parts, false); res != gitignore.NoMatch {
			return &MatchedRule{Rule: r}
		}
	}

	if p.matcher != nil && p.matcher.Match(parts, false) {
		return &MatchedRule{Rule: &PatternRule{Origin: 0, Index: -1}}
	}

	return nil
}
