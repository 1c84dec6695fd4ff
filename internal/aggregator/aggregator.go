// Package aggregator implements the Evidence Aggregator: it converts the
// heterogeneous hits produced by the registry, the vector index, and any
// external web lookup into a single weighted decision with an auditable
// evidence trace.
package aggregator

import (
	"strings"
	"time"
)

// Source names which tier produced a piece of Evidence.
type Source string

const (
	SourceRegistry Source = "official-registry"
	SourceVector   Source = "vector"
	SourceWeb      Source = "web"
)

// MatchStrength buckets how closely a candidate matched the query.
type MatchStrength string

const (
	MatchExact  MatchStrength = "exact"
	MatchStrong MatchStrength = "strong"
	MatchMedium MatchStrength = "medium"
	MatchWeak   MatchStrength = "weak"
	MatchNone   MatchStrength = "none"
)

// sourceWeight is W[source] in the scoring formula.
var sourceWeight = map[Source]float64{
	SourceRegistry: 0.95,
	SourceVector:   0.75,
	SourceWeb:      0.60,
}

// matchMultiplier is M[match_strength] in the scoring formula.
var matchMultiplier = map[MatchStrength]float64{
	MatchExact:  1.00,
	MatchStrong: 0.85,
	MatchMedium: 0.65,
	MatchWeak:   0.40,
	MatchNone:   0.10,
}

// Evidence is a single weighted observation about a candidate product from
// one tier/source.
type Evidence struct {
	Source         Source
	ProductID      string
	Name           string
	Payload        map[string]any
	MatchStrength  MatchStrength
	Quality        float64
	RecencyFactor  float64
	NameConfidence float64
	ProviderScore  float64
	Reasons        []string
}

// score computes s = W[source] * (0.45*M + 0.25*Q + 0.20*R + 0.10*N),
// clamped to [0,1].
func (e Evidence) score() float64 {
	w := sourceWeight[e.Source]
	m := matchMultiplier[e.MatchStrength]
	s := w * (0.45*m + 0.25*e.Quality + 0.20*e.RecencyFactor + 0.10*e.NameConfidence)
	return clamp(s, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Result is the final verification outcome: a decision, the confidence
// behind it, and the full evidence trace for audit.
type Result struct {
	Decision    string // "valid" | "invalid" | "unknown"
	Confidence  float64
	TopSource   Source
	Explanation string
	Winner      *Evidence
	AllEvidence []Evidence
}

// Aggregate implements the decision table: sort evidence by score, inspect
// the winner's source/match-strength and payload status, then fall back to
// a not-found-majority check before settling on "unknown".
func Aggregate(evidence []Evidence) Result {
	if len(evidence) == 0 {
		return Result{Decision: "unknown", Confidence: 0, Explanation: "no evidence"}
	}

	ranked := make([]Evidence, len(evidence))
	copy(ranked, evidence)
	scores := make([]float64, len(ranked))
	for i, e := range ranked {
		scores[i] = e.score()
	}
	// descending insertion sort by score, small N (single-digit evidence
	// lists per verification) makes this as fast as anything else.
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && scores[j] > scores[j-1] {
			scores[j], scores[j-1] = scores[j-1], scores[j]
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
			j--
		}
	}

	top := ranked[0]
	topScore := scores[0]

	decision := "unknown"
	var explanations []string

	if top.Source == SourceRegistry && (top.MatchStrength == MatchExact || top.MatchStrength == MatchStrong) {
		status := strings.ToLower(payloadString(top.Payload, "state", "status"))
		switch status {
		case "valid", "registered", "active", "aktif":
			decision = "valid"
			explanations = append(explanations, "Found official record in registry.")
		case "invalid", "revoked", "expired", "nonaktif", "not_registered":
			decision = "invalid"
			explanations = append(explanations, "Official record indicates not registered/revoked.")
		default:
			decision = "valid"
			explanations = append(explanations, "Official record found, status unspecified but treated as valid.")
		}
	}

	if decision == "unknown" {
		negatives := 0
		for _, e := range evidence {
			if payloadBool(e.Payload, "not_found") || payloadBool(e.Payload, "unregistered") {
				negatives++
			}
		}
		if negatives >= 2 && topScore >= 0.5 {
			decision = "invalid"
			explanations = append(explanations, "Multiple sources suggest unregistered product.")
		}
	}

	if len(explanations) == 0 {
		explanations = append(explanations, "Top evidence from "+string(top.Source)+" with "+string(top.MatchStrength)+" match.")
	}

	winner := top
	return Result{
		Decision:    decision,
		Confidence:  topScore,
		TopSource:   top.Source,
		Explanation: strings.Join(explanations, " "),
		Winner:      &winner,
		AllEvidence: evidence,
	}
}

func payloadString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func payloadBool(payload map[string]any, key string) bool {
	if v, ok := payload[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// DeriveMatchStrength implements the spec's match-strength derivation for a
// tier that didn't preset one: exact tiers compare normalized query against
// code/name; lexical and vector tiers threshold on provider score.
func DeriveMatchStrength(source Source, normalizedQuery, code, name string, providerScore float64) MatchStrength {
	if source == SourceRegistry {
		q := strings.ToLower(normalizedQuery)
		c, n := strings.ToLower(code), strings.ToLower(name)
		switch {
		case q == c || q == n:
			return MatchExact
		case (c != "" && strings.Contains(c, q)) || (n != "" && strings.Contains(n, q)):
			return MatchStrong
		default:
			return MatchMedium
		}
	}

	switch {
	case providerScore >= 0.85:
		return MatchStrong
	case providerScore >= 0.70:
		return MatchMedium
	default:
		return MatchWeak
	}
}

// DeriveRecency buckets a candidate's last-updated timestamp into the
// recency factor R; a zero time (missing) gets the 0.60 default.
func DeriveRecency(updatedAt time.Time, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0.60
	}
	age := now.Sub(updatedAt)
	switch {
	case age <= 365*24*time.Hour:
		return 0.90
	case age <= 3*365*24*time.Hour:
		return 0.75
	default:
		return 0.50
	}
}

// populatedFields are the candidate fields that contribute to the quality
// score when non-empty.
var populatedFields = []string{"name", "manufacturer", "category", "composition", "state", "updated_at"}

// DeriveQuality computes base (source-dependent) + 0.12 per populated field
// among name/manufacturer/category/composition/state/updated_at, capped at 1.
func DeriveQuality(source Source, fields map[string]string) float64 {
	base := 0.30
	if source == SourceRegistry {
		base = 0.40
	}
	q := base
	for _, f := range populatedFields {
		if strings.TrimSpace(fields[f]) != "" {
			q += 0.12
		}
	}
	return clamp(q, 0, 1)
}
