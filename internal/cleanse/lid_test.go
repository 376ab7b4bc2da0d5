package cleanse

import "testing"

func TestParseLidExtractsCph(t *testing.T) {
	lid, ok := ParseLid("AB-12/345/6789")
	if !ok {
		t.Fatalf("expected ParseLid to accept a well-formed LID")
	}
	if lid.Region != "AB" || lid.CountyCode != 12 || lid.ParishCode != "345" || lid.HoldingCode != "6789" {
		t.Fatalf("ParseLid = %+v, unexpected field values", lid)
	}
	if lid.Cph != "12/345/6789" {
		t.Fatalf("Lid.Cph = %q, want %q", lid.Cph, "12/345/6789")
	}
}

func TestParseLidRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "AB/123/0001", "A-12/345/6789", "AB-1/345/6789", "AB-12/34/6789"}
	for _, c := range cases {
		if _, ok := ParseLid(c); ok {
			t.Errorf("ParseLid(%q) = ok, want rejected", c)
		}
	}
}

func TestParseCph(t *testing.T) {
	cph, ok := ParseCph("12/345/6789")
	if !ok {
		t.Fatalf("expected ParseCph to accept a well-formed CPH")
	}
	if cph.CountyCode != 12 || cph.ParishCode != "345" || cph.HoldingCode != "6789" {
		t.Fatalf("ParseCph = %+v, unexpected field values", cph)
	}
}

func TestInCtsCountyRange(t *testing.T) {
	if !InCtsCountyRange(1) || !InCtsCountyRange(51) {
		t.Fatalf("boundary county codes 1 and 51 should be in range")
	}
	if InCtsCountyRange(0) || InCtsCountyRange(52) {
		t.Fatalf("county codes outside [1,51] should not be in range")
	}
}
