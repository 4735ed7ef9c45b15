package appraisal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DuplicateThreshold = 85.0
	FallbackReject     = "Gambar ditolak AI."
)

// Verdict is the model's structured answer about a candidate photo.
type Verdict struct {
	Valid           bool     `json:"valid"`
	RejectReason    string   `json:"reject_reason"`
	SimilarityScore float64  `json:"similarity_score"`
	IsDuplicate     bool     `json:"is_duplicate"`
	TotalValueIDR   int64    `json:"total_value_idr"`
	ItemsDetected   []string `json:"items_detected"`
}

// ParseVerdict reads the model output. Numbers and booleans may arrive as strings.
func ParseVerdict(obj map[string]any) (Verdict, error) {
	if obj == nil {
		return Verdict{}, fmt.Errorf("empty verdict")
	}
	v := Verdict{
		Valid:           asBool(obj["valid"]),
		RejectReason:    strings.TrimSpace(asString(obj["reject_reason"])),
		SimilarityScore: clamp(asFloat(obj["similarity_score"]), 0, 100),
		IsDuplicate:     asBool(obj["is_duplicate"]),
	}
	value := asIDR(obj["total_value_idr"])
	if value > 0 {
		v.TotalValueIDR = int64(math.Floor(value))
	}
	if raw, ok := obj["items_detected"].([]any); ok {
		for _, it := range raw {
			if s := strings.TrimSpace(asString(it)); s != "" {
				v.ItemsDetected = append(v.ItemsDetected, s)
			}
		}
	}
	return v, nil
}

func (v Verdict) JSON() []byte {
	b, _ := json.Marshal(v)
	return b
}

func asBool(x any) bool {
	switch t := x.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case float64:
		return t != 0
	default:
		return false
	}
}

func asFloat(x any) float64 {
	switch t := x.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asIDR also accepts rupiah strings such as "Rp 350.000" or "350.000,50". A '.' or ','
// followed by exactly three digits groups thousands; a trailing one marks the fraction.
func asIDR(x any) float64 {
	s, ok := x.(string)
	if !ok {
		return asFloat(x)
	}
	s = strings.NewReplacer("Rp", "", "rp", "", "RP", "", "IDR", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(normalizeDigits(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func normalizeDigits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '.' && c != ',' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		digits := j - i - 1
		end := j == len(s)
		switch {
		case digits == 3 && (end || s[j] == '.' || s[j] == ','):
		case end && digits > 0:
			b.WriteByte('.')
		default:
			return ""
		}
	}
	return b.String()
}

func asString(x any) string {
	switch t := x.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
