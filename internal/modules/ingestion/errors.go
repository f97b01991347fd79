package ingestion

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindTranscriptUnavailable     Kind = "transcript_unavailable"
	KindAcquisitionTimeout        Kind = "acquisition_timeout"
	KindAcquisitionFailure        Kind = "acquisition_failure"
	KindEmptyTranscript           Kind = "empty_transcript"
	KindChunkingProducedNoResults Kind = "chunking_produced_no_results"
	KindCoverageMismatch          Kind = "coverage_mismatch"
	KindCollectionNotFound        Kind = "collection_not_found"
	KindEmbeddingFailure          Kind = "embedding_failure"
	KindStatusUpdateFailure       Kind = "status_update_failure"
)

// Kinds lists every failure kind.
func Kinds() []Kind {
	return []Kind{
		KindTranscriptUnavailable,
		KindAcquisitionTimeout,
		KindAcquisitionFailure,
		KindEmptyTranscript,
		KindChunkingProducedNoResults,
		KindCoverageMismatch,
		KindCollectionNotFound,
		KindEmbeddingFailure,
		KindStatusUpdateFailure,
	}
}

// Retryable reports whether running the same step again could succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindTranscriptUnavailable, KindEmptyTranscript, KindChunkingProducedNoResults, KindCoverageMismatch:
		return false
	default:
		return true
	}
}

// Error is the outcome of a failed ingestion step.
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, step string, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

// KindOf extracts the failure kind, or "" for foreign errors.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) && ie != nil {
		return ie.Kind
	}
	return ""
}

var (
	ErrNoSegments    = errors.New("transcript has no segments")
	ErrNoPassages    = errors.New("chunking produced no passages")
	ErrCoverage      = errors.New("passages do not cover the transcript")
	ErrInvalidSource = errors.New("unrecognised video source")
)
