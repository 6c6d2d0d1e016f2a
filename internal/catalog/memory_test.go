package catalog_test

import (
	"context"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subcool-seeds/cultivai-orders/internal/catalog"
)

var productID = uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440001"))

func TestMemoryStore_ReserveAndRelease(t *testing.T) {
	store := catalog.NewMemoryStore()
	store.AddProduct(catalog.Product{ID: productID, Name: "Seed pack", Price: 20, Stock: 5})

	lines := []catalog.StockLine{{ProductID: productID, Quantity: 2}}

	require.NoError(t, store.Reserve(context.Background(), lines))
	stock, err := store.Stock(productID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	require.NoError(t, store.Release(context.Background(), lines))
	stock, err = store.Stock(productID)
	require.NoError(t, err)
	assert.Equal(t, 5, stock)
}

func TestMemoryStore_ReserveFailures(t *testing.T) {
	store := catalog.NewMemoryStore()
	store.AddProduct(catalog.Product{ID: productID, Name: "Seed pack", Price: 20, Stock: 1})

	err := store.Reserve(context.Background(), []catalog.StockLine{{ProductID: productID, Quantity: 2}})
	assert.ErrorIs(t, err, catalog.ErrOutOfStock)

	missing := uuid.Must(uuid.NewV4())
	err = store.Reserve(context.Background(), []catalog.StockLine{{ProductID: missing, Quantity: 1}})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	// A failing line anywhere in the batch must leave every line untouched.
	err = store.Reserve(context.Background(), []catalog.StockLine{
		{ProductID: productID, Quantity: 1},
		{ProductID: missing, Quantity: 1},
	})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	stock, err := store.Stock(productID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestMemoryStore_ConcurrentReserveNeverOversells(t *testing.T) {
	store := catalog.NewMemoryStore()
	store.AddProduct(catalog.Product{ID: productID, Name: "Seed pack", Price: 20, Stock: 10})

	const n = 30
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Reserve(context.Background(), []catalog.StockLine{{ProductID: productID, Quantity: 1}})
			if err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	count := 0
	for range succeeded {
		count++
	}
	assert.Equal(t, 10, count)

	stock, err := store.Stock(productID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
}
