package convert

import (
	"strings"
	"testing"
)

func TestToExpression_Fraction(t *testing.T) {
	got := New().ToExpression("<mfrac><mi>a</mi><mi>b</mi></mfrac>")
	if got != `\frac{a}{b}` {
		t.Errorf("got %q, want %q", got, `\frac{a}{b}`)
	}
}

func TestConvert_StructuralConstructs(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"sqrt", "<msqrt><mi>x</mi></msqrt>", `\sqrt{x}`},
		{"sqrt inferred row", "<msqrt><mi>x</mi><mo>+</mo><mn>1</mn></msqrt>", `\sqrt{x + 1}`},
		{"sup", "<msup><mi>x</mi><mn>2</mn></msup>", `x^{2}`},
		{"sub", "<msub><mi>a</mi><mi>i</mi></msub>", `a_{i}`},
		{"nested", "<math><mfrac><msup><mi>x</mi><mn>2</mn></msup><msqrt><mi>y</mi></msqrt></mfrac></math>", `\frac{x^{2}}{\sqrt{y}}`},
		{"fenced default", "<mfenced><mi>a</mi><mi>b</mi></mfenced>", `(a b)`},
		{"fenced custom", `<mfenced open="[" close="]"><mi>a</mi></mfenced>`, `[a]`},
		{"row order", "<mrow><mi>a</mi><mo>=</mo><mi>b</mi></mrow>", `a = b`},
		{"whitespace between children", "<mfrac>\n  <mi>1</mi>\n  <mn>2</mn>\n</mfrac>", `\frac{1}{2}`},
		{"unsupported keeps text", "<munder><mi>lim</mi><mi>n</mi></munder>", `limn`},
		{"namespaced", `<m:math xmlns:m="http://www.w3.org/1998/Math/MathML"><m:mi>z</m:mi></m:math>`, `z`},
		{"entity", "<mo>&lt;</mo>", `<`},
		{"bare text", "x + 1", `x + 1`},
	}
	e := New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Convert(tc.in)
			if res.Tier != TierStructural {
				t.Errorf("tier = %v, want structural", res.Tier)
			}
			if res.Expression != tc.want {
				t.Errorf("got %q, want %q", res.Expression, tc.want)
			}
		})
	}
}

func TestConvert_TwoChildArityDegrades(t *testing.T) {
	e := New()
	if got := e.ToExpression("<mfrac><mi>a</mi></mfrac>"); got != "a" {
		t.Errorf("frac with one child = %q, want %q", got, "a")
	}
	if got := e.ToExpression("<msup><mi>x</mi></msup>"); got != "x" {
		t.Errorf("sup with one child = %q, want %q", got, "x")
	}
	res := e.Convert("<msub></msub>")
	if res.Expression != "" {
		t.Errorf("empty sub = %q, want empty", res.Expression)
	}
}

func TestConvert_MalformedUsesPatterns(t *testing.T) {
	e := New()
	res := e.Convert("<mfrac><mi>a</mi><mi>b</mi></mfrac><mrow>")
	if res.Tier != TierPattern {
		t.Fatalf("tier = %v, want pattern", res.Tier)
	}
	if res.Expression != `\frac{a}{b}` {
		t.Errorf("got %q", res.Expression)
	}

	res = e.Convert("<msqrt><mfrac><mi>a</mi><mi>b</mi></mfrac></msqrt></oops>")
	if res.Expression != `\sqrt{\frac{a}{b}}` {
		t.Errorf("nested patterns = %q", res.Expression)
	}

	res = e.Convert("<msup><mi>e</mi><mi>x</mi></msup><broken")
	if res.Expression != `e^{x}` {
		t.Errorf("sup pattern = %q", res.Expression)
	}

	res = e.Convert("<msqrt><mi>x</mi><mn>2</mn></msqrt><mi>")
	if res.Tier != TierPattern || res.Expression != `\sqrt{x 2}` {
		t.Errorf("sqrt with several children = %q (%v)", res.Expression, res.Tier)
	}

	res = e.Convert("<mfrac><mrow><mi>a</mi><mo>+</mo><mi>b</mi></mrow><mi>c</mi></mfrac><broken")
	if res.Tier != TierPattern || res.Expression != `\frac{a + b}{c}` {
		t.Errorf("frac with row operand = %q (%v)", res.Expression, res.Tier)
	}
}

func TestConvert_RawTextFallback(t *testing.T) {
	e := New()
	res := e.Convert("<msqrt><mi>x</mi></mrow>")
	if res.Tier != TierRawText {
		t.Fatalf("tier = %v, want raw-text", res.Tier)
	}
	if res.Expression != "x" {
		t.Errorf("got %q, want %q", res.Expression, "x")
	}
	if !res.Degraded() {
		t.Error("raw-text result should report degraded")
	}
}

func TestConvert_NeverFails(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"<",
		">>><<<",
		"a < b",
		"<mfrac>",
		"</mfrac>",
		"<mi>unterminated",
		"<![CDATA[x",
		"<?xml version='1.0'?><math/>",
		"&bogus;",
		strings.Repeat("<mrow>", 500),
	}
	e := New()
	for _, in := range inputs {
		_ = e.ToExpression(in)
	}
	if got := e.ToExpression(""); got != "" {
		t.Errorf("empty input = %q, want empty", got)
	}
	if got := e.ToExpression("a < b"); got != "a < b" {
		t.Errorf("non-XML text = %q", got)
	}
}

func TestConvert_DepthGuardFallsThrough(t *testing.T) {
	in := strings.Repeat("<mrow>", 10) + "<mi>x</mi>" + strings.Repeat("</mrow>", 10)

	shallow := New(WithMaxDepth(4)).Convert(in)
	if shallow.Tier == TierStructural {
		t.Errorf("depth guard not applied")
	}
	if shallow.Expression != "x" {
		t.Errorf("guarded result = %q, want %q", shallow.Expression, "x")
	}

	deep := New().Convert(in)
	if deep.Tier != TierStructural || deep.Expression != "x" {
		t.Errorf("default depth result = %+v", deep)
	}
}

func TestStripTags(t *testing.T) {
	got := StripTags("<math>\n <mi>a</mi><mo>+</mo>  <mi>b</mi>\n</math>")
	if got != "a+ b" {
		t.Errorf("got %q", got)
	}
	if StripTags("<mo>&amp;</mo>") != "&" {
		t.Errorf("entities not decoded")
	}
}
