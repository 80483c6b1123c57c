package apiclient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func countingFetch(calls *int, rows Records, err error) func() (Records, error) {
	return func() (Records, error) {
		*calls++
		return rows, err
	}
}

func TestListCache_ReusesWithinTTL(t *testing.T) {
	cache := NewListCache(time.Minute)
	rows := Records{{"nombre": "Acme Foods"}}
	calls := 0

	got, hit, err := cache.Fetch("suppliers|acme", countingFetch(&calls, rows, nil))
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, rows, got)

	for range 2 {
		got, hit, err = cache.Fetch("suppliers|acme", countingFetch(&calls, nil, nil))
		require.NoError(t, err)
		require.True(t, hit)
		require.Equal(t, rows, got)
	}
	require.Equal(t, 1, calls)

	// A different query is a different entry
	_, hit, _ = cache.Fetch("suppliers|pacific", countingFetch(&calls, Records{}, nil))
	require.False(t, hit)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, cache.Len())

	cache.Clear()
	require.Zero(t, cache.Len())
	_, hit, _ = cache.Fetch("suppliers|acme", countingFetch(&calls, rows, nil))
	require.False(t, hit)
	require.Equal(t, 3, calls)
}

func TestListCache_Expires(t *testing.T) {
	cache := NewListCache(30 * time.Millisecond)
	calls := 0

	_, _, err := cache.Fetch("k", countingFetch(&calls, Records{}, nil))
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, hit, err := cache.Fetch("k", countingFetch(&calls, Records{}, nil))
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, calls)
}

func TestListCache_ErrorsAreNotCached(t *testing.T) {
	cache := NewListCache(time.Minute)
	calls := 0
	boom := errors.New("backend down")

	_, _, err := cache.Fetch("k", countingFetch(&calls, nil, boom))
	require.ErrorIs(t, err, boom)
	require.Zero(t, cache.Len())

	_, hit, err := cache.Fetch("k", countingFetch(&calls, Records{}, nil))
	require.NoError(t, err)
	require.False(t, hit)
	require.Equal(t, 2, calls)
}

func TestListCache_Disabled(t *testing.T) {
	for name, cache := range map[string]*ListCache{
		"zero ttl": NewListCache(0),
		"nil":      nil,
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			for range 3 {
				_, hit, err := cache.Fetch("k", countingFetch(&calls, Records{}, nil))
				require.NoError(t, err)
				require.False(t, hit)
			}
			require.Equal(t, 3, calls)
			require.Zero(t, cache.Len())
			cache.Clear()
		})
	}
}
