package kwp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFatal(t *testing.T) {
	require.False(t, IsFatal(nil))
	require.False(t, IsFatal(ErrKeywordTimeout))
	require.False(t, IsFatal(ErrNotReady))
	require.False(t, IsFatal(fmt.Errorf("attempt: %w", ErrKeywordTimeout)))
	require.True(t, IsFatal(ErrBufferOverflow))
	require.True(t, IsFatal(&EchoError{}))
	require.True(t, IsFatal(&CounterError{}))
	require.True(t, IsFatal(errors.New("serial port gone")))
	require.True(t, IsFatal(&PayloadSizeError{Expected: 32, Actual: 1}))
	require.True(t, IsFatal(ErrReceiveTimeout))
	require.False(t, IsFatal(&BlockSizeError{Size: 257, Max: 64}))
}

func TestSizeErrors(t *testing.T) {
	require.EqualError(t, &BlockSizeError{Size: 257, Max: 64}, "tx block of 257 bytes exceeds 64")
	require.EqualError(t, &PayloadSizeError{Expected: 32, Actual: 1}, "rx payload size wrong: expected 32, got 1")
}

func TestAttemptsError(t *testing.T) {
	var e AttemptsError
	e.add(10400, ErrKeywordTimeout)
	e.add(9600, ErrKeywordTimeout)
	require.EqualError(t, &e, "all 2 connect attempts failed:\n10400 baud: keyword timeout\n9600 baud: keyword timeout")
	require.True(t, errors.Is(&e, ErrKeywordTimeout))
	require.False(t, IsFatal(&e))
}
