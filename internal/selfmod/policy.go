package selfmod

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Policy is an immutable snapshot of the allow-list and the payload blocklist.
// Updates build a new Policy and swap it in whole.
type Policy struct {
	allowPatterns  []string
	allow          []glob.Glob
	safetyPatterns []string
	safety         []*regexp.Regexp
}

// NewPolicy compiles allow-list globs (slash separated, relative to the engine root)
// and safety regular expressions
func NewPolicy(allowList, safetyPatterns []string) (*Policy, error) {
	p := &Policy{}

	for _, pattern := range allowList {
		pattern = filepath.ToSlash(filepath.Clean(pattern))
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list pattern '%s': %w", pattern, err)
		}
		p.allowPatterns = append(p.allowPatterns, pattern)
		p.allow = append(p.allow, g)
	}

	for _, pattern := range safetyPatterns {
		re, err := regexp.Compile("(?m)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid safety pattern '%s': %w", pattern, err)
		}
		p.safetyPatterns = append(p.safetyPatterns, pattern)
		p.safety = append(p.safety, re)
	}

	return p, nil
}

// Allowed reports whether a root-relative path matches the allow-list.
// An empty allow-list allows nothing.
func (p *Policy) Allowed(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	for _, g := range p.allow {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Blocked returns the first safety pattern the payload matches
func (p *Policy) Blocked(payload string) (string, bool) {
	for i, re := range p.safety {
		if re.MatchString(payload) {
			return p.safetyPatterns[i], true
		}
	}
	return "", false
}

// AllowList returns a copy of the allow-list patterns
func (p *Policy) AllowList() []string {
	return append([]string(nil), p.allowPatterns...)
}

// SafetyPatterns returns a copy of the safety patterns
func (p *Policy) SafetyPatterns() []string {
	return append([]string(nil), p.safetyPatterns...)
}

func (p *Policy) withAllowList(allowList []string) (*Policy, error) {
	return NewPolicy(allowList, p.safetyPatterns)
}

func (p *Policy) withSafetyPattern(pattern string) (*Policy, error) {
	for _, existing := range p.safetyPatterns {
		if existing == pattern {
			return p, nil
		}
	}
	return NewPolicy(p.allowPatterns, append(p.SafetyPatterns(), pattern))
}
