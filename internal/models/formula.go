// Package models defines the domain types for Formulary.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind tells whether a formula sits inside a text run or occupies its own block.
type Kind string

const (
	KindInline Kind = "inline"
	KindBlock  Kind = "block"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindInline || k == KindBlock
}

// DisplayMode reports whether the typesetting engine should lay the formula
// out in display style.
func (k Kind) DisplayMode() bool {
	return k == KindBlock
}

// ParseKind parses s, treating the empty string as inline.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindInline, nil
	}
	if !k.Valid() {
		return "", fmt.Errorf("unknown formula kind %q", s)
	}
	return k, nil
}

// Format is the notation a formula's source text is written in.
type Format string

const (
	// FormatExpression is the LaTeX-like expression language.
	FormatExpression Format = "expression"
	// FormatMarkup is the MathML-like markup interchange format.
	FormatMarkup Format = "markup"
)

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	return f == FormatExpression || f == FormatMarkup
}

// ParseFormat parses s, treating the empty string as the expression language.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatExpression, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("unknown formula format %q", s)
	}
	return f, nil
}

// FormulaNode is one atomic formula embedded in a document.
//
// RenderedMarkup and AccessibilityLabel are derived from
// (SourceFormat, SourceText, Kind) and are only ever set by the renderer.
type FormulaNode struct {
	ID                 string    `json:"id"`
	Kind               Kind      `json:"kind"`
	SourceFormat       Format    `json:"sourceFormat"`
	SourceText         string    `json:"sourceText"`
	RenderedMarkup     string    `json:"renderedMarkup"`
	AccessibilityLabel string    `json:"accessibilityLabel"`
	CreatedAt          time.Time `json:"createdAt"`
	ModifiedAt         time.Time `json:"modifiedAt"`
}

// Patch holds the fields to merge into a stored node. Nil fields are left
// untouched.
type Patch struct {
	Kind               *Kind
	SourceFormat       *Format
	SourceText         *string
	RenderedMarkup     *string
	AccessibilityLabel *string
}

// Apply merges p into n and returns the result. Timestamps are not touched.
func (p Patch) Apply(n FormulaNode) FormulaNode {
	if p.Kind != nil {
		n.Kind = *p.Kind
	}
	if p.SourceFormat != nil {
		n.SourceFormat = *p.SourceFormat
	}
	if p.SourceText != nil {
		n.SourceText = *p.SourceText
	}
	if p.RenderedMarkup != nil {
		n.RenderedMarkup = *p.RenderedMarkup
	}
	if p.AccessibilityLabel != nil {
		n.AccessibilityLabel = *p.AccessibilityLabel
	}
	return n
}

// OpKind classifies an undo log entry.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is one reversible formula mutation. Before is nil for inserts and
// After is nil for deletes.
type Operation struct {
	Kind      OpKind
	NodeID    string
	Before    *FormulaNode
	After     *FormulaNode
	Timestamp time.Time
	// Location is the child-index path of the formula element in the
	// document tree at the time of the operation, if it had one.
	Location []int
}

// FileMeta describes an export file known to a storage provider.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
