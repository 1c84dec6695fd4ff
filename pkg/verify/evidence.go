package verify

import (
	"time"

	"github.com/bpomverify/bpomverify/internal/aggregator"
	"github.com/bpomverify/bpomverify/internal/registry"
	"github.com/bpomverify/bpomverify/internal/router"
	"github.com/bpomverify/bpomverify/internal/scanpipeline"
)

// recencyFactor maps a product's last-updated timestamp to [0,1]: fresh
// within a year scores 1.0, decaying linearly to 0.2 by five years, never
// dropping below that floor — a record re-confirmed five years ago is
// still an official record, just a less current one.
func recencyFactor(updatedAt time.Time) float64 {
	if updatedAt.IsZero() {
		return 0.5
	}
	age := time.Since(updatedAt)
	const year = 365 * 24 * time.Hour
	years := age.Hours() / year.Hours()
	switch {
	case years <= 1:
		return 1.0
	case years >= 5:
		return 0.2
	default:
		return 1.0 - (years-1)/4*0.8
	}
}

// matchStrengthForScore buckets a router/registry similarity score into the
// aggregator's discrete match-strength scale.
func matchStrengthForScore(score float64) aggregator.MatchStrength {
	switch {
	case score >= 0.95:
		return aggregator.MatchExact
	case score >= 0.80:
		return aggregator.MatchStrong
	case score >= 0.55:
		return aggregator.MatchMedium
	case score > 0:
		return aggregator.MatchWeak
	default:
		return aggregator.MatchNone
	}
}

// evidenceFromHit converts one retrieval router result into an aggregator
// Evidence record. Exact-tier hits are always MatchExact (the router only
// returns them on a confirmed identifier match); lexical/vector/hybrid hits
// are bucketed by score.
func evidenceFromHit(r router.Result) aggregator.Evidence {
	src := aggregator.SourceRegistry
	strength := matchStrengthForScore(r.Score)

	switch r.Source {
	case registry.SourceExact:
		strength = aggregator.MatchExact
	case registry.SourceVector:
		src = aggregator.SourceVector
	case registry.SourceLex, registry.SourceHybrid:
		src = aggregator.SourceRegistry
	}

	p := r.Product
	return aggregator.Evidence{
		Source:        src,
		ProductID:     p.ID,
		Name:          p.Name,
		Payload:       map[string]any{"status": p.Status, "code": p.Code, "tier": string(r.Source)},
		MatchStrength: strength,
		Quality:       r.Score,
		RecencyFactor: recencyFactor(p.UpdatedAt),
		NameConfidence: 1.0,
		Reasons:       []string{"retrieval router " + string(r.Source) + " tier hit"},
	}
}

// evidenceFromScanMatch converts the Scan Pipeline's T1 search hit
// (router match on OCR'd, normalized title text) into Evidence, scaling
// NameConfidence by the OCR title confidence that produced the query text
// in the first place — a high-scoring router match on garbled OCR text is
// less trustworthy than the same match on clean text.
func evidenceFromScanMatch(m scanpipeline.Match, titleConf float64) aggregator.Evidence {
	strength := matchStrengthForScore(m.Confidence)
	if m.Source == registry.SourceExact {
		strength = aggregator.MatchExact
	}
	src := aggregator.SourceRegistry
	if m.Source == registry.SourceVector {
		src = aggregator.SourceVector
	}
	p := m.Product
	return aggregator.Evidence{
		Source:         src,
		ProductID:      p.ID,
		Name:           p.Name,
		Payload:        map[string]any{"status": p.Status, "code": p.Code, "tier": string(m.Source)},
		MatchStrength:  strength,
		Quality:        m.Confidence,
		RecencyFactor:  recencyFactor(p.UpdatedAt),
		NameConfidence: titleConf,
		Reasons:        []string{"scan title OCR matched via " + string(m.Source) + " tier"},
	}
}

// evidenceFromRegexHit converts a regex-extracted registration number that
// resolved to an exact catalog hit into Evidence, always MatchExact since
// the extractor only yields a code when its pattern matched in full.
func evidenceFromRegexHit(p registry.Product) aggregator.Evidence {
	return aggregator.Evidence{
		Source:         aggregator.SourceRegistry,
		ProductID:      p.ID,
		Name:           p.Name,
		Payload:        map[string]any{"status": p.Status, "code": p.Code, "tier": "regex"},
		MatchStrength:  aggregator.MatchExact,
		Quality:        1.0,
		RecencyFactor:  recencyFactor(p.UpdatedAt),
		NameConfidence: 1.0,
		Reasons:        []string{"regex-extracted registration number matched the registry exactly"},
	}
}
