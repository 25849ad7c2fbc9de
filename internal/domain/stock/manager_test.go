package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/store/memory"
)

func seedProduct(t *testing.T, ms *memory.Store, id string, stockQty int) {
	t.Helper()
	err := ms.Products().Insert(context.Background(), &catalog.Product{
		ID:            id,
		SellerID:      "seller-1",
		Name:          "test product",
		Price:         1000,
		StockQuantity: stockQty,
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	require.NoError(t, err)
}

func TestReserve(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 10)

	require.NoError(t, mgr.Reserve(context.Background(), "p1", 4))

	p, ok := ms.Product("p1")
	require.True(t, ok)
	assert.Equal(t, 10, p.StockQuantity)
	assert.Equal(t, 4, p.ReservedQuantity)
}

func TestReserve_Insufficient(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 3)

	err := mgr.Reserve(context.Background(), "p1", 4)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	p, _ := ms.Product("p1")
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestReserve_InvalidQuantity(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 3)

	assert.ErrorIs(t, mgr.Reserve(context.Background(), "p1", 0), stock.ErrInvalidQuantity)
	assert.ErrorIs(t, mgr.Reserve(context.Background(), "p1", -1), stock.ErrInvalidQuantity)
}

func TestRelease_FlooredAtZero(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 10)

	require.NoError(t, mgr.Reserve(context.Background(), "p1", 2))
	require.NoError(t, mgr.Release(context.Background(), "p1", 5))

	p, _ := ms.Product("p1")
	assert.Equal(t, 0, p.ReservedQuantity)
	assert.Equal(t, 10, p.StockQuantity)
}

func TestCommit(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 10)

	require.NoError(t, mgr.Reserve(context.Background(), "p1", 3))
	require.NoError(t, mgr.Commit(context.Background(), "p1", 3))

	p, _ := ms.Product("p1")
	assert.Equal(t, 7, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}

func TestCommit_WithoutReservation(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 10)

	err := mgr.Commit(context.Background(), "p1", 3)
	require.Error(t, err)

	p, _ := ms.Product("p1")
	assert.Equal(t, 10, p.StockQuantity)
}

func TestRestock(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 10)

	require.NoError(t, mgr.Reserve(context.Background(), "p1", 3))
	require.NoError(t, mgr.Commit(context.Background(), "p1", 3))
	require.NoError(t, mgr.Restock(context.Background(), "p1", 3))

	p, _ := ms.Product("p1")
	assert.Equal(t, 10, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
}

// Two buyers racing for the last unit: exactly one reservation wins.
func TestReserve_ConcurrentLastUnit(t *testing.T) {
	ms := memory.New()
	mgr := stock.NewManager(ms.Products())
	seedProduct(t, ms, "p1", 1)

	const buyers = 16
	var wg sync.WaitGroup
	errs := make([]error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mgr.Reserve(context.Background(), "p1", 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, wins)

	p, _ := ms.Product("p1")
	assert.Equal(t, 1, p.ReservedQuantity)
}
