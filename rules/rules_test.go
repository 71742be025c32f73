package rules

import (
	"strings"
	"testing"

	"github.com/theojepsen/nuevomatch/nmtype"
)

func TestParseBasicRule(t *testing.T) {
	const text = `
# comment line, skipped
10.0.0.0/8 192.168.1.0/24 80:80 1024:65535 6/0xff
ANY ANY ANY ANY ANY
`
	got, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rules, want 2", len(got))
	}

	r := got[0]
	if r.Priority != 1 {
		t.Fatalf("Priority = %d, want 1 (line order)", r.Priority)
	}
	if r.Fields[nmtype.FieldSrc].Low != 0x0A000000 || r.Fields[nmtype.FieldSrc].High != 0x0AFFFFFF {
		t.Fatalf("src range = %+v, want 10.0.0.0-10.255.255.255", r.Fields[nmtype.FieldSrc])
	}
	if r.Fields[nmtype.FieldDport].Low != 1024 || r.Fields[nmtype.FieldDport].High != 65535 {
		t.Fatalf("dport range = %+v", r.Fields[nmtype.FieldDport])
	}
	if r.Fields[nmtype.FieldProto].Low != 6 || r.Fields[nmtype.FieldProto].High != 6 {
		t.Fatalf("proto range = %+v, want exact match on 6", r.Fields[nmtype.FieldProto])
	}
	if r.Fields[nmtype.FieldTos] != (nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}) {
		t.Fatalf("tos range = %+v, want full wildcard", r.Fields[nmtype.FieldTos])
	}

	wild := got[1]
	for i, f := range wild.Fields {
		if f.Low != 0 {
			t.Fatalf("field %d low = %d, want 0 for ANY rule", i, f.Low)
		}
	}
}

func TestParseExplicitPriority(t *testing.T) {
	got, err := Parse(strings.NewReader("ANY ANY ANY ANY ANY 42\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got[0].Priority != 42 {
		t.Fatalf("Priority = %d, want 42", got[0].Priority)
	}
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("ANY ANY ANY\n"))
	if err == nil {
		t.Fatal("Parse: expected error for a line with too few fields")
	}
}

func TestParseRejectsInvertedPortRange(t *testing.T) {
	_, err := Parse(strings.NewReader("ANY ANY 100:50 ANY ANY\n"))
	if err == nil {
		t.Fatal("Parse: expected error for min port > max port")
	}
}

func TestParseSingleValuePort(t *testing.T) {
	got, err := Parse(strings.NewReader("ANY ANY 80 80 ANY\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got[0].Fields[nmtype.FieldSport] != (nmtype.FieldRange{Low: 80, High: 80}) {
		t.Fatalf("sport range = %+v, want exact 80", got[0].Fields[nmtype.FieldSport])
	}
}

func TestParseProtoWildcardMask(t *testing.T) {
	got, err := Parse(strings.NewReader("ANY ANY ANY ANY 6/0x00\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got[0].Fields[nmtype.FieldProto] != (nmtype.FieldRange{Low: 0, High: nmtype.NoFieldLimit}) {
		t.Fatalf("proto range = %+v, want full wildcard under a zero mask", got[0].Fields[nmtype.FieldProto])
	}
}
