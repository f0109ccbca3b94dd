package provider

import (
	"fmt"

	"github.com/oliveagle/jsonpath"
)

// StatusUnknown is reported when a detail response carries no status.
const StatusUnknown = "unknown"

// Rule is an ordered list of JSONPath expressions. Evaluating a rule returns
// the first expression that resolves to a non-empty string.
type Rule struct {
	paths []*jsonpath.Compiled
}

// NewRule compiles the given expressions into a Rule.
func NewRule(exprs ...string) (Rule, error) {
	r := Rule{paths: make([]*jsonpath.Compiled, 0, len(exprs))}
	for _, expr := range exprs {
		c, err := jsonpath.Compile(expr)
		if err != nil {
			return Rule{}, fmt.Errorf("provider: compile rule %q: %w", expr, err)
		}
		r.paths = append(r.paths, c)
	}
	return r, nil
}

// MustRule is like NewRule but panics on a bad expression.
// It is meant for package-level rule tables.
func MustRule(exprs ...string) Rule {
	r, err := NewRule(exprs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Eval folds the rule over data left to right.
func (r Rule) Eval(data any) string {
	for _, p := range r.paths {
		if s := lookupString(p, data); s != "" {
			return s
		}
	}
	return ""
}

// DetailRules declares where each normalized detail field is found.
type DetailRules struct {
	Status        Rule
	VideoURL      Rule
	Error         Rule
	DefaultStatus string
}

// Apply extracts a Detail from a decoded response.
func (dr DetailRules) Apply(raw any) (Detail, bool) {
	if raw == nil {
		return Detail{}, false
	}
	d := Detail{
		Status:   dr.Status.Eval(raw),
		VideoURL: dr.VideoURL.Eval(raw),
		Error:    dr.Error.Eval(raw),
	}
	if d.Status == "" {
		d.Status = firstNonEmpty(dr.DefaultStatus, StatusUnknown)
	}
	return d, true
}

// defaultDetailRules matches the response shapes both providers return: the
// fields either at the top level or nested under "data".
var defaultDetailRules = DetailRules{
	Status:        MustRule("$.status", "$.data.status"),
	VideoURL:      MustRule("$.video_url", "$.data.video_url"),
	Error:         MustRule("$.error", "$.error.message", "$.data.error"),
	DefaultStatus: StatusUnknown,
}

// lookupString resolves p against data and returns the match only when it is
// a string. Misses and wrong types yield "".
func lookupString(p *jsonpath.Compiled, data any) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	v, err := p.Lookup(data)
	if err != nil {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}
