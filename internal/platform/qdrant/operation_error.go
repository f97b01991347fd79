package qdrant

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
	OperationErrorEmbedFailed     OperationErrorCode = "embed_failed"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "qdrant operation failed"
	}
	detail := e.Message
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	if detail == "" {
		return fmt.Sprintf("qdrant operation failed (op=%s code=%s status=%d)", e.Operation, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("qdrant operation failed (op=%s code=%s status=%d): %s", e.Operation, e.Code, e.StatusCode, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is maps the operation error onto the index package sentinels so callers
// never need to know about Qdrant.
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case index.ErrCollectionNotFound:
		return e.StatusCode == http.StatusNotFound
	case index.ErrEmbedding:
		return e.Code == OperationErrorEmbedFailed
	case index.ErrUnavailable:
		switch e.Code {
		case OperationErrorTransportFailed, OperationErrorTimeout, OperationErrorEmbedFailed:
			return true
		case OperationErrorQueryFailed:
			return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
		}
	}
	return false
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}

func isStatus(err error, code int) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.StatusCode == code
}
