package mcpserver

// ExportFormatContract describes the export formats that LLM consumers
// should produce when handing formulas to import_formulas.
const ExportFormatContract = `# Formulary Export Format Contract

Formulas travel between documents as JSON or HTML export documents. Both
carry only the authoritative fields of a formula; rendered markup and
accessibility labels are recomputed on import (JSON) or taken from the
embedded markup (HTML).

## Fields

| field | values | default |
|---|---|---|
| id | any string; a fresh id is assigned when empty or already taken | generated |
| kind | ` + "`inline`" + ` or ` + "`block`" + ` | inline |
| sourceFormat | ` + "`expression`" + ` (LaTeX-like) or ` + "`markup`" + ` (MathML-like) | expression |
| sourceText | the formula source, never blank | REQUIRED |
| createdAt / modifiedAt | RFC 3339 timestamps | import time |

## JSON

` + "```" + `json
{
  "version": "1.0",
  "timestamp": "2025-01-20T10:00:00Z",
  "nodes": [
    {"id": "f1", "kind": "inline", "sourceFormat": "expression", "sourceText": "\\frac{a}{b}"},
    {"kind": "block", "sourceFormat": "markup", "sourceText": "<msqrt><mi>x</mi></msqrt>"}
  ]
}
` + "```" + `

## HTML

` + "```" + `html
<div class="formula-export" data-version="1.0">
  <span class="formula-node" contenteditable="false"
        data-formula-id="f1" data-formula-kind="inline"
        data-formula-format="expression" data-formula-source="\frac{a}{b}"
        aria-label="a over b">...rendered markup...</span>
</div>
` + "```" + `

Block formulas use a ` + "`div`" + ` element instead of a ` + "`span`" + `.

## Rules

1. **Import is best effort.** Every valid entry is imported; each rejected
   entry adds one message to ` + "`errors`" + ` and sets ` + "`success`" + ` to false.
2. **A blank sourceText is rejected**, as is an unknown kind or sourceFormat.
3. **A different version** is imported anyway and logged as a warning.
4. **Imported formulas are appended** to the end of the document and each one
   can be undone.
5. **Encoding** is UTF-8.
`
