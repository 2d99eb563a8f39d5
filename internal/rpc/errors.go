package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/tokenwatch/transferscan/pkg/chain"
)

// Kind buckets RPC failures by how the caller should react.
type Kind int

const (
	// KindTransient errors are retried with backoff: timeouts, rate limits,
	// 5xx responses, connection failures.
	KindTransient Kind = iota

	// KindMalformed errors mean the node returned something unparseable.
	KindMalformed

	// KindFatal errors cannot be resolved by retrying: authentication
	// failures, unsupported methods.
	KindFatal
)

// String returns a stable label for logging and metrics.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an RPC error to its kind. Unknown errors are treated as
// transient so a flaky node does not halt the scanner; genuinely fatal
// conditions match the explicit patterns below.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	if errors.Is(err, chain.ErrBlockNotFound) {
		// Not a failure of the transport; callers handle it directly.
		return KindTransient
	}

	errStr := strings.ToLower(err.Error())

	// Authentication and capability errors never resolve on retry.
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "method not found") ||
		strings.Contains(errStr, "the method") && strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "not supported") {
		return KindFatal
	}

	// Unparseable responses.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}
	if strings.Contains(errStr, "invalid character") ||
		strings.Contains(errStr, "cannot unmarshal") {
		return KindMalformed
	}

	return KindTransient
}

// retryableError reports whether a failed call should be attempted again.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is the caller's decision, not a node failure.
	if errors.Is(err, context.Canceled) {
		return false
	}

	if Classify(err) != KindTransient {
		return false
	}

	if errors.Is(err, chain.ErrBlockNotFound) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}
