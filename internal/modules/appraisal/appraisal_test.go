package appraisal

import (
	"strings"
	"testing"
)

func TestPointsForValueBoundaries(t *testing.T) {
	cases := []struct {
		value int64
		want  int
	}{
		{0, 20},
		{99999, 20},
		{100000, 70},
		{299999, 70},
		{300000, 110},
		{499999, 110},
		{500000, 200},
		{5000000, 200},
	}
	for _, tc := range cases {
		if got := PointsForValue(tc.value); got != tc.want {
			t.Fatalf("PointsForValue(%d): want=%d got=%d", tc.value, tc.want, got)
		}
	}
}

func TestDecideEmptyHistoryNeverDuplicate(t *testing.T) {
	d := Decide(Verdict{Valid: true, SimilarityScore: 99, IsDuplicate: true, TotalValueIDR: 150000}, 0)
	if !d.Accepted {
		t.Fatalf("want accepted, got message %q", d.Message)
	}
	if d.Points != 70 {
		t.Fatalf("points: want=70 got=%d", d.Points)
	}
	if d.Verdict.IsDuplicate || d.Verdict.SimilarityScore != 0 {
		t.Fatalf("verdict not sanitised: %+v", d.Verdict)
	}
}

func TestDecideSimilarityBoundary(t *testing.T) {
	d := Decide(Verdict{Valid: true, SimilarityScore: 86}, 2)
	if d.Accepted {
		t.Fatalf("similarity 86 must reject")
	}
	if d.Message != "Woi, jangan upload foto yang sama! (Kemiripan 86%)" {
		t.Fatalf("message: got %q", d.Message)
	}

	d = Decide(Verdict{Valid: true, SimilarityScore: 85}, 2)
	if !d.Accepted {
		t.Fatalf("similarity 85 must accept, got %q", d.Message)
	}

	d = Decide(Verdict{Valid: true, SimilarityScore: 10, IsDuplicate: true}, 1)
	if d.Accepted {
		t.Fatalf("duplicate flag with history must reject")
	}
}

func TestDecideInvalid(t *testing.T) {
	d := Decide(Verdict{Valid: false, RejectReason: "Ini foto layar HP."}, 0)
	if d.Accepted || d.Message != "Ini foto layar HP." {
		t.Fatalf("got %+v", d)
	}
	d = Decide(Verdict{Valid: false}, 3)
	if d.Accepted || d.Message != FallbackReject {
		t.Fatalf("fallback: got %+v", d)
	}
}

func TestParseVerdictTolerantTypes(t *testing.T) {
	v, err := ParseVerdict(map[string]any{
		"valid":            "true",
		"reject_reason":    "  ",
		"similarity_score": "42",
		"is_duplicate":     false,
		"total_value_idr":  "Rp 350.000",
		"items_detected":   []any{"Nendoroid", "", "Acrylic stand"},
	})
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if !v.Valid || v.SimilarityScore != 42 || v.TotalValueIDR != 350000 {
		t.Fatalf("parsed: %+v", v)
	}
	if len(v.ItemsDetected) != 2 {
		t.Fatalf("items: want=2 got=%d", len(v.ItemsDetected))
	}

	v, _ = ParseVerdict(map[string]any{"valid": true, "similarity_score": 250.0, "total_value_idr": -5.0})
	if v.SimilarityScore != 100 || v.TotalValueIDR != 0 {
		t.Fatalf("clamping: %+v", v)
	}

	if _, err := ParseVerdict(nil); err == nil {
		t.Fatalf("nil verdict: want error")
	}
}

func TestParseVerdictRupiahFormats(t *testing.T) {
	cases := []struct {
		in     any
		value  int64
		points int
	}{
		{"350000.00", 350000, 110},
		{"Rp 350.000,50", 350000, 110},
		{"Rp 350.000", 350000, 110},
		{"IDR 1,250,000", 1250000, 200},
		{"1.234.567", 1234567, 200},
		{"99999,9", 99999, 20},
		{"150000", 150000, 70},
		{320000.75, 320000, 110},
		{"12.34.5", 0, 20},
		{"lots", 0, 20},
	}
	for _, tc := range cases {
		v, err := ParseVerdict(map[string]any{"valid": true, "total_value_idr": tc.in})
		if err != nil {
			t.Fatalf("ParseVerdict(%v): %v", tc.in, err)
		}
		if v.TotalValueIDR != tc.value {
			t.Fatalf("value(%v): want=%d got=%d", tc.in, tc.value, v.TotalValueIDR)
		}
		if got := PointsForValue(v.TotalValueIDR); got != tc.points {
			t.Fatalf("points(%v): want=%d got=%d", tc.in, tc.points, got)
		}
	}
}

func TestPromptMentionsHistoryCount(t *testing.T) {
	p := Prompt("Rem", 3)
	if !strings.Contains(p, "(3 foto)") || !strings.Contains(p, `"Rem"`) {
		t.Fatalf("prompt missing context: %s", p)
	}
	s := Schema()
	if req, ok := s["required"].([]string); !ok || len(req) != 6 {
		t.Fatalf("schema required: %v", s["required"])
	}
}
