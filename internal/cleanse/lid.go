package cleanse

import (
	"fmt"
	"regexp"
	"strconv"
)

// Lid is a parsed "XX-CC/PPP/HHHH" LID Full Identifier (spec.md
// GLOSSARY): a two-letter region prefix over a CPH.
type Lid struct {
	Value       string
	Region      string
	CountyCode  int
	ParishCode  string
	HoldingCode string
	Cph         string
}

var lidPattern = regexp.MustCompile(`^([A-Za-z]{2})-(\d{2})/(\d{3})/(\d{4})$`)

// ParseLid parses s as "XX-CC/PPP/HHHH". Returns ok=false on any
// grammar mismatch (spec.md §4.7: "skip if unparseable").
func ParseLid(s string) (Lid, bool) {
	m := lidPattern.FindStringSubmatch(s)
	if m == nil {
		return Lid{}, false
	}
	county, err := strconv.Atoi(m[2])
	if err != nil {
		return Lid{}, false
	}
	return Lid{
		Value:       s,
		Region:      m[1],
		CountyCode:  county,
		ParishCode:  m[3],
		HoldingCode: m[4],
		Cph:         fmt.Sprintf("%s/%s/%s", m[2], m[3], m[4]),
	}, true
}

// Cph is a parsed "CC/PPP/HHHH" County-Parish-Holding identifier.
type Cph struct {
	CountyCode  int
	ParishCode  string
	HoldingCode string
	Value       string
}

var cphPattern = regexp.MustCompile(`^(\d{2})/(\d{3})/(\d{4})$`)

// ParseCph parses s as "CC/PPP/HHHH". Returns ok=false on any grammar
// mismatch.
func ParseCph(s string) (Cph, bool) {
	m := cphPattern.FindStringSubmatch(s)
	if m == nil {
		return Cph{}, false
	}
	county, err := strconv.Atoi(m[1])
	if err != nil {
		return Cph{}, false
	}
	return Cph{CountyCode: county, ParishCode: m[2], HoldingCode: m[3], Value: s}, true
}

// CtsCountyMin/CtsCountyMax bound the valid CTS county-code range
// (spec.md §4.7: "skip ... if county code ∉ [1,51]").
const (
	CtsCountyMin = 1
	CtsCountyMax = 51
)

// InCtsCountyRange reports whether county is a valid CTS county code.
func InCtsCountyRange(county int) bool {
	return county >= CtsCountyMin && county <= CtsCountyMax
}
