package render

import (
	"regexp"
	"strings"
)

const maxLabelPasses = 32

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Innermost constructs only: group contents must be brace-free, so nested
// constructs are spoken after their children were rewritten.
var labelRules = []rule{
	{regexp.MustCompile(`\\frac\s*\{([^{}]*)\}\s*\{([^{}]*)\}`), " fraction $1 over $2 "},
	{regexp.MustCompile(`\\sqrt\s*\{([^{}]*)\}`), " square root of $1 "},
	{regexp.MustCompile(`([^\s{}^_]*)\s*\^\s*\{([^{}]*)\}`), " $1 to the power of $2 "},
	{regexp.MustCompile(`([^\s{}^_]+)\s*\^\s*([^\s{}^_\\])`), " $1 to the power of $2 "},
	{regexp.MustCompile(`([^\s{}^_]*)\s*_\s*\{([^{}]*)\}`), " $1 sub $2 "},
	{regexp.MustCompile(`([^\s{}^_]+)\s*_\s*([^\s{}^_\\])`), " $1 sub $2 "},
}

var commandRe = regexp.MustCompile(`\\([A-Za-z]+)`)

// Label derives a human-readable description from expression text.
func Label(expr string) string {
	s := expr
	for pass := 0; pass < maxLabelPasses; pass++ {
		before := s
		for _, r := range labelRules {
			s = r.re.ReplaceAllString(s, r.repl)
		}
		if s == before {
			break
		}
	}
	s = commandRe.ReplaceAllString(s, " $1 ")
	s = strings.NewReplacer("{", " ", "}", " ", `\`, " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
