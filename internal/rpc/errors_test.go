package rpc

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tokenwatch/transferscan/pkg/chain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"timeout", errors.New("context deadline exceeded"), KindTransient},
		{"rate limit", errors.New("429 Too Many Requests"), KindTransient},
		{"bad gateway", errors.New("502 Bad Gateway"), KindTransient},
		{"conn refused", syscall.ECONNREFUSED, KindTransient},
		{"unknown", errors.New("something odd"), KindTransient},
		{"unauthorized", errors.New("401 Unauthorized"), KindFatal},
		{"forbidden", errors.New("403 Forbidden: invalid api key"), KindFatal},
		{"unsupported method", errors.New("the method eth_getLogs does not exist/is not available"), KindFatal},
		{"method not found", errors.New("method not found"), KindFatal},
		{"bad json", errors.New("invalid character '<' looking for beginning of value"), KindMalformed},
		{"bad shape", errors.New("json: cannot unmarshal string into Go value of type uint64"), KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryableError(t *testing.T) {
	require.False(t, retryableError(nil))
	require.False(t, retryableError(context.Canceled))
	require.False(t, retryableError(errors.New("401 Unauthorized")))
	require.False(t, retryableError(fmt.Errorf("header 5: %w", chain.ErrBlockNotFound)))

	require.True(t, retryableError(errors.New("read tcp: i/o timeout")))
	require.True(t, retryableError(errors.New("429 too many requests")))
	require.True(t, retryableError(errors.New("503 Service Unavailable")))
	require.True(t, retryableError(syscall.ECONNRESET))
	require.True(t, retryableError(errors.New("unexpected EOF")))

	// Unknown errors are transient by classification but not retried
	// blindly.
	require.False(t, retryableError(errors.New("something odd")))
}
