package verify

import (
	"context"
	"log/slog"
	"time"

	"github.com/bpomverify/bpomverify/internal/aggregator"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
	"github.com/bpomverify/bpomverify/internal/scanpipeline"
)

// ScanOutcome pairs the Scan Pipeline's merged extraction with the
// Evidence Aggregator's decision over whatever it found.
type ScanOutcome struct {
	Scan     *scanpipeline.Result
	Decision *aggregator.Result
}

// VerifyScan runs the Scan Pipeline over a label photograph and aggregates
// whatever evidence it recovers: the T1 title-search match (if any) and an
// exact registry lookup on the T2 regex-extracted registration number (if
// any). A photograph that yields neither still returns a non-nil
// ScanOutcome whose Decision is "unknown" — the pipeline itself never
// errors, and registry-lookup and audit-write failures are only logged, so
// errors are returned only when no detector/OCR is configured or raw is
// empty.
func (s *Service) VerifyScan(ctx context.Context, raw []byte) (*ScanOutcome, error) {
	if s.pipeline == nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid,
			"verify.VerifyScan: no detector/OCR provider configured", nil).
			WithSuggestion("pass Dependencies.Detector and Dependencies.OCR to verify.Open")
	}
	if len(raw) == 0 {
		return nil, verrors.New(verrors.ErrCodeInvalidImage, "image must not be empty", nil)
	}

	scanResult := s.pipeline.Run(ctx, raw)

	var evidence []aggregator.Evidence
	if scanResult.Match != nil {
		evidence = append(evidence, evidenceFromScanMatch(*scanResult.Match, scanResult.TitleConf))
	}
	if scanResult.BPOMNumber != "" {
		if p, found, err := s.registry.FindByCode(ctx, scanResult.BPOMNumber); err != nil {
			slog.Warn("registry lookup for regex-extracted code failed",
				slog.String("code", scanResult.BPOMNumber), slog.String("error", err.Error()))
		} else if found {
			evidence = append(evidence, evidenceFromRegexHit(p))
		}
	}

	decision := aggregator.Aggregate(evidence)

	auditKey := scanResult.BPOMNumber
	if auditKey == "" {
		auditKey = scanResult.TitleText
	}
	if auditKey != "" {
		if err := s.registry.SaveAudit(ctx, auditKey, decision.Decision, time.Now()); err != nil {
			slog.Warn("failed to write audit record", slog.String("error", err.Error()))
		}
	}

	return &ScanOutcome{Scan: scanResult, Decision: &decision}, nil
}
