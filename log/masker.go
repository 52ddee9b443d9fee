/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

// Mask is used to mask a secret in strings.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// FieldMasker is used to mask a field in different formats.
type FieldMasker struct {
	Field string // lowercase
	Masks []Mask
}

// NewFieldMasker builds masks for every format listed in the rule.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fMask := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Formats))}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fMask.Masks = append(fMask.Masks, Mask{
				regexp.MustCompile(`(?i)` + regexp.QuoteMeta(cfg.Field) + `: .+?\r\n`), cfg.Field + ": ***\r\n"})
		case FieldMaskFormatJSON:
			fMask.Masks = append(fMask.Masks, Mask{
				regexp.MustCompile(`(?i)"` + regexp.QuoteMeta(cfg.Field) + `"\s*:\s*"(?:[^"\\]|\\.)*"`), `"` + cfg.Field + `":"***"`})
		}
	}
	return fMask
}

// Masker is used to mask various secrets in strings.
type Masker struct {
	FieldMasks []FieldMasker
}

// NewMasker creates a new Masker for the given rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	r := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	for _, rule := range rules {
		r.FieldMasks = append(r.FieldMasks, NewFieldMasker(rule))
	}
	return r
}

// Mask replaces all secrets found in s.
func (r *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fieldMask := range r.FieldMasks {
		if !strings.Contains(lower, fieldMask.Field) {
			continue
		}
		for _, m := range fieldMask.Masks {
			s = m.RegExp.ReplaceAllString(s, m.Mask)
		}
	}
	return s
}

// DefaultMasks hides document signatures and credentials sent to the registry.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "signature",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON},
	},
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON},
	},
}
