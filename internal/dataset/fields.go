package dataset

import (
	"strings"

	"github.com/keeperdata/keeperdata/internal/types"
)

// DataFields centralizes every column/field name the cleanse rules and
// ingestion row views consume, per spec.md §9's design note ("all
// field-name constants live in one module"). Keeping them here instead
// of scattered as string literals across cleanse/importpipeline is the
// one concession to static typing this system makes over its
// dynamically-typed row maps.
const (
	FieldLidFullIdentifier = "LID_FULL_IDENTIFIER"
	FieldCph               = "CPH"
	FieldAdrName           = "ADR_NAME"
	FieldFeatureName       = "FEATURE_NAME"
	FieldAnimalSpeciesCode = "ANIMAL_SPECIES_CODE"
	FieldEmailAddress      = "EMAIL_ADDRESS"
	FieldTelephoneNumber   = "TELEPHONE_NUMBER"
)

// CattleSpeciesCode is the SAM ANIMAL_SPECIES_CODE value meaning
// "cattle" (spec.md §4.7 rule 6/10).
const CattleSpeciesCode = "CTT"

// CtsCollection and SamCollection are the dataset names the cleanse
// engine scans (spec.md §4.7). They must match a registered
// DataSetDefinition.Name.
const (
	CtsCollection = "cts_cph_holding"
	SamCollection = "sam_cph_holding"
)

// CtsCphHoldingView exposes the exact fields ProcessCtsPrimary needs
// from a CTS holding Record, parsed out of the loosely-typed map
// (spec.md §9's "pair every consumer with a small typed view").
type CtsCphHoldingView struct {
	LidFullIdentifier string
	AdrName           string
	Emails            []string
	Phones            []string
}

// NewCtsCphHoldingView parses view fields out of rec.
func NewCtsCphHoldingView(rec types.Record) CtsCphHoldingView {
	return CtsCphHoldingView{
		LidFullIdentifier: stringField(rec, FieldLidFullIdentifier),
		AdrName:           stringField(rec, FieldAdrName),
		Emails:            delimitedField(rec, FieldEmailAddress),
		Phones:            delimitedField(rec, FieldTelephoneNumber),
	}
}

// SamCphHoldingView exposes the exact fields ProcessSamPrimary and
// ProcessCtsPrimary need from a SAM holding Record.
type SamCphHoldingView struct {
	Cph              string
	FeatureName      string
	AnimalSpeciesCode string
	Emails           []string
	Phones           []string
}

// NewSamCphHoldingView parses view fields out of rec.
func NewSamCphHoldingView(rec types.Record) SamCphHoldingView {
	return SamCphHoldingView{
		Cph:               stringField(rec, FieldCph),
		FeatureName:       stringField(rec, FieldFeatureName),
		AnimalSpeciesCode: stringField(rec, FieldAnimalSpeciesCode),
		Emails:            delimitedField(rec, FieldEmailAddress),
		Phones:            delimitedField(rec, FieldTelephoneNumber),
	}
}

func stringField(rec types.Record, field string) string {
	s, _ := rec[field].(string)
	return s
}

// delimitedField splits a "; "-joined accumulator field (spec.md
// §4.10's array-field join convention, reused on ingest) into its
// member values, tolerating a plain single value with no delimiter.
func delimitedField(rec types.Record, field string) []string {
	raw := stringField(rec, field)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
