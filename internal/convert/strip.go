package convert

import (
	"strings"

	"golang.org/x/net/html"
)

// StripTags removes every tag from s and returns the remaining text with
// entities decoded and whitespace runs collapsed.
func StripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
