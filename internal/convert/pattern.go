package convert

import (
	"regexp"
	"strings"
)

const (
	attrs = `(?:\s[^>]*)?`
	token = `<(?:mi|mn|mo|mtext)` + attrs + `>[^<]*</(?:mi|mn|mo|mtext)>`
	group = `<mrow` + attrs + `>(?:[^<]|` + token + `)*</mrow>`

	// operand matches a token element, a row of tokens, or a bare run
	// produced by an earlier replacement.
	operand = `\s*(` + token + `|` + group + `|[^<\s]+)\s*`
	// content matches any mix of text, token elements and rows.
	content = `((?:[^<]|` + token + `|` + group + `)*)`
)

var (
	fracRe = regexp.MustCompile(`<mfrac` + attrs + `>` + operand + operand + `</mfrac>`)
	sqrtRe = regexp.MustCompile(`<msqrt` + attrs + `>` + content + `</msqrt>`)
	supRe  = regexp.MustCompile(`<msup` + attrs + `>` + operand + operand + `</msup>`)

	tagRe = regexp.MustCompile(`<[^>]*>`)
)

const maxPatternPasses = 32

type pattern struct {
	re    *regexp.Regexp
	build func(ops []string) string
}

var patterns = []pattern{
	{fracRe, func(ops []string) string { return `\frac{` + ops[0] + "}{" + ops[1] + "}" }},
	{sqrtRe, func(ops []string) string { return `\sqrt{` + ops[0] + "}" }},
	{supRe, func(ops []string) string { return ops[0] + "^{" + ops[1] + "}" }},
}

// extractPatterns rewrites the known constructs directly in the raw string,
// innermost first, until nothing changes. It returns "" when no pattern
// matched at all.
func extractPatterns(s string) string {
	matched := false
	for pass := 0; pass < maxPatternPasses; pass++ {
		changed := false
		for _, p := range patterns {
			next := p.re.ReplaceAllStringFunc(s, func(m string) string {
				sub := p.re.FindStringSubmatch(m)
				return p.build(operandValues(sub[1:]))
			})
			if next != s {
				s = next
				changed = true
			}
		}
		if !changed {
			break
		}
		matched = true
	}
	if !matched {
		return ""
	}
	return StripTags(s)
}

// operandValues drops the tags of each captured operand and joins its
// children with single spaces, the way rows are joined in tier 1.
func operandValues(groups []string) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = strings.Join(strings.Fields(tagRe.ReplaceAllString(g, " ")), " ")
	}
	return out
}
