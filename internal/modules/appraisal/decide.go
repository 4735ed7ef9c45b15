package appraisal

import (
	"fmt"
	"strconv"
)

// Decision is the code-enforced outcome for one appraisal.
type Decision struct {
	Accepted bool
	Message  string
	Points   int
	Value    int64
	// Verdict is the model output after the history rules were applied.
	Verdict Verdict
}

// Decide applies the business rules on top of the model verdict. historyCount is the
// number of history images actually sent with the request.
func Decide(v Verdict, historyCount int) Decision {
	if historyCount <= 0 {
		v.IsDuplicate = false
		v.SimilarityScore = 0
	}
	d := Decision{Verdict: v, Value: v.TotalValueIDR}
	if !v.Valid {
		d.Message = v.RejectReason
		if d.Message == "" {
			d.Message = FallbackReject
		}
		return d
	}
	if historyCount > 0 && (v.IsDuplicate || v.SimilarityScore > DuplicateThreshold) {
		d.Message = fmt.Sprintf("Woi, jangan upload foto yang sama! (Kemiripan %s%%)",
			strconv.FormatFloat(v.SimilarityScore, 'f', -1, 64))
		return d
	}
	d.Accepted = true
	d.Points = PointsForValue(v.TotalValueIDR)
	return d
}

// PointsForValue is the award table on estimated value in IDR, lower bounds inclusive.
func PointsForValue(value int64) int {
	switch {
	case value >= 500000:
		return 200
	case value >= 300000:
		return 110
	case value >= 100000:
		return 70
	default:
		return 20
	}
}
