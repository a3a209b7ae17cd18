package circuitbreaker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/arbitrage-detector/pkg/types"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:   "valid-config",
			config: &Config{Name: "valid", MaxFailures: 3, OpenTimeout: time.Second},
		},
		{
			name:    "nil-config",
			wantErr: "config cannot be nil",
		},
		{
			name:    "empty-name",
			config:  &Config{MaxFailures: 3, OpenTimeout: time.Second},
			wantErr: "name cannot be empty",
		},
		{
			name:    "zero-max-failures",
			config:  &Config{Name: "x", OpenTimeout: time.Second},
			wantErr: "max failures must be positive",
		},
		{
			name:    "zero-open-timeout",
			config:  &Config{Name: "x", MaxFailures: 3},
			wantErr: "open timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "closed", b.State())
		})
	}
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	b, err := New(&Config{
		Name:        "trip-test",
		MaxFailures: 2,
		OpenTimeout: 50 * time.Millisecond,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	failing := func() error {
		calls++
		return boom
	}

	require.ErrorIs(t, b.Execute(failing), boom)
	require.ErrorIs(t, b.Execute(failing), boom)
	assert.Equal(t, "open", b.State())

	rejectedBefore := testutil.ToFloat64(BreakerRejectedTotal.WithLabelValues("trip-test"))
	err = b.Execute(failing)
	require.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(BreakerRejectedTotal.WithLabelValues("trip-test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(BreakerState.WithLabelValues("trip-test")))

	time.Sleep(80 * time.Millisecond)

	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 0.0, testutil.ToFloat64(BreakerState.WithLabelValues("trip-test")))
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, err := New(&Config{Name: "reset-test", MaxFailures: 2, OpenTimeout: time.Minute})
	require.NoError(t, err)

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return boom })

	assert.Equal(t, "closed", b.State())
}

func TestCall_ReturnsValue(t *testing.T) {
	b, err := New(&Config{Name: "call-test", MaxFailures: 1, OpenTimeout: time.Minute})
	require.NoError(t, err)

	got, err := Call(b, func() ([]string, error) { return []string{"a", "b"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	_, err = Call(b, func() ([]string, error) { return nil, errors.New("down") })
	require.Error(t, err)

	got, err = Call(b, func() ([]string, error) { return []string{"c"}, nil })
	require.ErrorIs(t, err, ErrOpen)
	assert.Nil(t, got)
}

func TestBreaker_NotFoundIsNotAFailure(t *testing.T) {
	b, err := New(&Config{Name: "not-found-test", MaxFailures: 1, OpenTimeout: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return fmt.Errorf("matrix: %w", types.ErrNotFound) })
		require.ErrorIs(t, err, types.ErrNotFound)
	}

	assert.Equal(t, "closed", b.State())
}
