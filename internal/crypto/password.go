package crypto

import (
	"fmt"
	"regexp"
	"strings"
)

// dateTokenPattern matches a date token in either hyphenated
// (YYYY-MM-DD) or compact (YYYYMMDD) form — spec.md's filename grammar
// (§6, §8) specifies the hyphenated form, but §6's own worked object-key
// example ("LITP_SAMCPHHOLDING_20250101.csv.enc") uses the compact form;
// both are accepted so the derivation law holds either way (an Open
// Question resolution, see DESIGN.md). The token may be followed by a
// "-HHMMSS" time-of-day and/or a ".ext" extension, both captured
// separately so they can be moved to the very end of the derived
// password rather than staying attached to the leading date.
var dateTokenPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{8})(-\d{6})?(\..+)?$`)

// DerivePassword implements the filename password law from spec.md
// §4.1/§8: split the base name on '_', find the first token matching
// YYYY-MM-DD, reverse the underscore-separated segments around it so
// the date becomes the leading segment, and reappend any trailing
// date-time portion and extension.
//
// For "T0_T1_..._Tn_YYYY-MM-DD[-HHMMSS].ext" the derived password is
// "YYYY-MM-DD_Tn_..._T1_T0[-HHMMSS].ext".
func DerivePassword(filename string) (string, error) {
	tokens := strings.Split(filename, "_")

	dateIdx := -1
	var datePart, suffix string
	for i, t := range tokens {
		m := dateTokenPattern.FindStringSubmatch(t)
		if m != nil {
			dateIdx = i
			datePart = m[1]
			suffix = m[2] + m[3]
			break
		}
	}
	if dateIdx < 0 {
		return "", fmt.Errorf("crypto: no date token (YYYY-MM-DD) found in filename %q", filename)
	}

	before := tokens[:dateIdx]
	after := tokens[dateIdx+1:]

	reversed := make([]string, 0, len(tokens))
	reversed = append(reversed, datePart)
	for i := len(before) - 1; i >= 0; i-- {
		reversed = append(reversed, before[i])
	}
	// Any tokens that followed the date token (rare, but preserved in
	// their original order appended after the reversed prefix) keep the
	// filename round-trippable for unusual names with trailing segments.
	reversed = append(reversed, after...)

	return strings.Join(reversed, "_") + suffix, nil
}
