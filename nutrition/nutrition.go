// Package nutrition holds the value types and pure logic of the nutrition
// resolution pipeline: quantity normalization, deterministic text parsing,
// candidate ranking, and candidate selection.
package nutrition

import "math"

// Source tags describe where a resolved item's numbers came from.
const (
	SourceUser      = "user"
	SourceLookup    = "lookup"
	SourceEstimated = "estimated"
	SourceMixed     = "mixed"
)

// Source types for candidate provenance.
const (
	SourceTypeLocal     = "local"
	SourceTypeRegional  = "de"
	SourceTypeGlobal    = "global"
	SourceTypeWeb       = "web"
	SourceTypeIntrinsic = "intrinsic"
)

// Candidate is a source-originated nutrition profile, per 100g. Ephemeral:
// only the derived ResolvedItem is ever persisted.
type Candidate struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand,omitempty"`
	KcalPer100g    float64 `json:"kcal_per_100g"`
	ProteinPer100g float64 `json:"protein_per_100g"`
	CarbsPer100g   float64 `json:"carbs_per_100g"`
	FatPer100g     float64 `json:"fat_per_100g"`
	URL            string  `json:"url,omitempty"`
	SourceType     string  `json:"source_type"`
	SourceLabel    string  `json:"source_label"`
}

// Finite reports whether all per-100g macros are finite numbers. Candidates
// failing this are dropped by the resolver.
func (c Candidate) Finite() bool {
	for _, v := range []float64{c.KcalPer100g, c.ProteinPer100g, c.CarbsPer100g, c.FatPer100g} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Provenance describes where a resolved item's values came from.
type Provenance struct {
	SourceType string `json:"source_type"`
	Label      string `json:"label"`
	URL        string `json:"url,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
}

// ResolvedItem is a mention after normalization and candidate selection.
// Created once per turn per mention; never mutated after persistence except
// through reconciliation, which records a revision.
type ResolvedItem struct {
	Name        string     `json:"name"`
	Display     string     `json:"display,omitempty"`
	AmountGrams *float64   `json:"amount_grams,omitempty"`
	Kcal        *float64   `json:"kcal,omitempty"`
	Protein     *float64   `json:"protein,omitempty"`
	Carbs       *float64   `json:"carbs,omitempty"`
	Fat         *float64   `json:"fat,omitempty"`
	Source      string     `json:"source"`
	Confidence  float64    `json:"confidence"`
	Assumptions []string   `json:"assumptions,omitempty"`
	Provenance  Provenance `json:"provenance"`
}

// Round1 rounds to one decimal place. Used everywhere a nutrition value is
// derived so results stay reproducible.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ptr(v float64) *float64 { return &v }
