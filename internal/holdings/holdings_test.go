package holdings

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/stationhost/internal/inventory"
)

func TestControllerOf(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(AgentKey("a1"), "p1", inventory.New("a1", "a1", 2))
	require.NoError(t, err)

	p, ok := r.ControllerOf("a1")
	require.True(t, ok)
	assert.Equal(t, "p1", string(p))

	_, err = r.Register(AgentKey("a1"), "p2", inventory.New("a1", "a1", 2))
	assert.ErrorIs(t, err, ErrExists)

	_, ok = r.Remove(AgentKey("a1"))
	require.True(t, ok)
	_, ok = r.ControllerOf("a1")
	assert.False(t, ok, "a released agent has no controller")
}

func TestAcquireUnknownKey(t *testing.T) {
	r := NewRegistry()
	_, err := r.Acquire(AgentKey("nobody"))
	assert.True(t, errors.Is(err, ErrUnknownHolding))
}

func TestRemovedHoldingCannotBeLeased(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(VendorKey("shop"), "", inventory.New("shop", "", 2))
	require.NoError(t, err)

	store, ok := r.Remove(VendorKey("shop"))
	require.True(t, ok)
	assert.NotNil(t, store)
	_, err = r.Acquire(VendorKey("shop"))
	assert.ErrorIs(t, err, ErrUnknownHolding)
}

func TestOverlappingLeasesSerialize(t *testing.T) {
	r := NewRegistry()
	a := inventory.New("a", "a", 0, inventory.WithCurrency(0))
	b := inventory.New("b", "b", 0, inventory.WithCurrency(0))
	_, _ = r.Register(AgentKey("a"), "pa", a)
	_, _ = r.Register(AgentKey("b"), "pb", b)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			lease, err := r.Acquire(AgentKey("a"), AgentKey("b"))
			if err != nil {
				t.Error(err)
				return
			}
			defer lease.Release()
			lease.Store(AgentKey("a")).AddCurrency(1)
			lease.Store(AgentKey("b")).AddCurrency(1)
		}()
		go func() {
			defer wg.Done()
			_ = r.WithInventory(AgentKey("b"), func(s *inventory.Store) error {
				s.AddCurrency(1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), a.Currency())
	assert.Equal(t, int64(100), b.Currency())
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register(AgentKey("a"), "pa", inventory.New("a", "a", 0))
	lease, err := r.Acquire(AgentKey("a"), AgentKey("a"))
	require.NoError(t, err)
	lease.Release()
	lease.Release()

	lease, err = r.Acquire(AgentKey("a"))
	require.NoError(t, err)
	lease.Release()
}
