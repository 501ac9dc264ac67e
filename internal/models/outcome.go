package models

import (
	"strings"
	"time"
)

// ProducerOutcome is the result of one producer over one file, or an
// aggregate over several files. Immutable once returned from a producer;
// AggregateOutcomes builds a new value rather than mutating inputs.
type ProducerOutcome struct {
	Producer    string        `json:"producer"`
	Findings    []Finding     `json:"findings"`
	Narrative   string        `json:"narrative,omitempty"`
	Score       *int          `json:"quality_score,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Cost        float64       `json:"cost"`
	Succeeded   bool          `json:"succeeded"`
	Error       string        `json:"error,omitempty"`
	CacheHit    bool          `json:"cache_hit,omitempty"`
}

// AggregateOutcomes concatenates per-file outcomes from one producer into a
// single outcome. The aggregate succeeds when at least one per-file outcome
// did; costs accrue either way. Returns a zero outcome when the slice is
// empty.
func AggregateOutcomes(outcomes []ProducerOutcome) ProducerOutcome {
	if len(outcomes) == 0 {
		return ProducerOutcome{}
	}
	agg := ProducerOutcome{
		Producer:  outcomes[0].Producer,
		Narrative: "aggregated across files",
	}
	var errs []string
	for _, o := range outcomes {
		agg.Findings = append(agg.Findings, o.Findings...)
		agg.Elapsed += o.Elapsed
		agg.Cost += o.Cost
		if o.Succeeded {
			agg.Succeeded = true
		} else if o.Error != "" {
			errs = append(errs, o.Error)
		}
	}
	agg.Error = strings.Join(errs, "; ")
	return agg
}
