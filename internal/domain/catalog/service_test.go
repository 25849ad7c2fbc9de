package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/infrastructure/store/memory"
)

func TestCreateProduct(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	p, err := svc.Create(context.Background(), "seller-1", "Kremas 75cl", "Boisson artisanale", 85000, 20)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "seller-1", p.SellerID)
	assert.Equal(t, int64(85000), p.Price)
	assert.Equal(t, 20, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
	assert.True(t, p.Active)
}

func TestCreateProduct_Validation(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	_, err := svc.Create(context.Background(), "seller-1", "Bad", "", 0, 10)
	assert.ErrorIs(t, err, catalog.ErrInvalidPrice)

	_, err = svc.Create(context.Background(), "seller-1", "Bad", "", 1000, -1)
	assert.ErrorIs(t, err, catalog.ErrInvalidStock)
}

func TestUpdateProduct(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	p, err := svc.Create(context.Background(), "seller-1", "Old name", "", 1000, 5)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), p.ID, "New name", "desc", 2000)
	require.NoError(t, err)
	assert.Equal(t, "New name", updated.Name)
	assert.Equal(t, int64(2000), updated.Price)

	_, err = svc.Update(context.Background(), "missing", "x", "", 1000)
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestDeactivate_BlocksNewReservations(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	p, err := svc.Create(context.Background(), "seller-1", "Chapo pay", "", 50000, 10)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), p.ID))

	ok, err := ms.Products().Reserve(context.Background(), p.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddStock(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	p, err := svc.Create(context.Background(), "seller-1", "Konfiti", "", 1500, 3)
	require.NoError(t, err)

	require.NoError(t, svc.AddStock(context.Background(), p.ID, 7))

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity)

	assert.ErrorIs(t, svc.AddStock(context.Background(), p.ID, 0), catalog.ErrInvalidStock)
}

func TestStockStatus_Labels(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	p, err := svc.Create(context.Background(), "seller-1", "Diri", "", 120000, 20)
	require.NoError(t, err)

	status, err := svc.StockStatus(context.Background(), p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, catalog.LabelInStock, status.Label)
	assert.Equal(t, 20, status.Available)
	assert.True(t, status.CanFulfill)

	// reserve until only 4 remain available
	ok, err := ms.Products().Reserve(context.Background(), p.ID, 16)
	require.NoError(t, err)
	require.True(t, ok)

	status, err = svc.StockStatus(context.Background(), p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, catalog.LabelLowStock, status.Label)
	assert.Equal(t, 4, status.Available)
	assert.False(t, status.CanFulfill)

	ok, err = ms.Products().Reserve(context.Background(), p.ID, 4)
	require.NoError(t, err)
	require.True(t, ok)

	status, err = svc.StockStatus(context.Background(), p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.LabelOutOfStock, status.Label)
	assert.Equal(t, 0, status.Available)
}

func TestList_FiltersSellerAndActive(t *testing.T) {
	ms := memory.New()
	svc := catalog.NewService(ms.Products())

	_, err := svc.Create(context.Background(), "seller-1", "A", "", 1000, 1)
	require.NoError(t, err)
	p2, err := svc.Create(context.Background(), "seller-2", "B", "", 1000, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(context.Background(), p2.ID))

	all, err := svc.List(context.Background(), "", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := svc.List(context.Background(), "", true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	seller2, err := svc.List(context.Background(), "seller-2", false)
	require.NoError(t, err)
	assert.Len(t, seller2, 1)
}
