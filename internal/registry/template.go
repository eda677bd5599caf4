package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {param} placeholders in URI templates.
var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// templateMatcher compiles a URI template like "weather://{city}/today"
// into a regexp that extracts its parameters.
type templateMatcher struct {
	params []string
	re     *regexp.Regexp
}

// newTemplateMatcher compiles a template. Templates must contain at least
// one placeholder.
func newTemplateMatcher(template string) (*templateMatcher, error) {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("template %q has no {param} placeholders", template)
	}

	var params []string
	seen := make(map[string]struct{})
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			return nil, fmt.Errorf("template %q repeats parameter %s", template, m[1])
		}
		seen[m[1]] = struct{}{}
		params = append(params, m[1])
	}

	pattern := "^" + placeholderToGroup(template) + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling template %q: %w", template, err)
	}
	return &templateMatcher{params: params, re: re}, nil
}

// placeholderToGroup escapes literal text and replaces each placeholder
// with a capture group.
func placeholderToGroup(template string) string {
	var out strings.Builder
	rest := template
	for {
		loc := placeholderPattern.FindStringIndex(rest)
		if loc == nil {
			out.WriteString(regexp.QuoteMeta(rest))
			return out.String()
		}
		out.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		out.WriteString("([^/]+)")
		rest = rest[loc[1]:]
	}
}

// checkParams verifies the declared parameter names equal the template's
// placeholder set exactly.
func (m *templateMatcher) checkParams(declared []string) error {
	want := append([]string(nil), m.params...)
	got := append([]string(nil), declared...)
	sort.Strings(want)
	sort.Strings(got)
	if len(want) != len(got) {
		return fmt.Errorf("parameters %v do not match template placeholders %v", declared, m.params)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("parameters %v do not match template placeholders %v", declared, m.params)
		}
	}
	return nil
}

// match extracts parameter values from a URI, or reports no match.
func (m *templateMatcher) match(uri string) (map[string]string, bool) {
	groups := m.re.FindStringSubmatch(uri)
	if groups == nil {
		return nil, false
	}
	params := make(map[string]string, len(m.params))
	for i, name := range m.params {
		params[name] = groups[i+1]
	}
	return params, true
}
