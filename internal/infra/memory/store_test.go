package memory

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p, err := s.Products().Create(ctx, model.Product{Name: "mug", Price: decimal.NewFromInt(1), Stock: 3, IsActive: true})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 2)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(3), s.Stock(p.ID))

	err = s.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Stock(p.ID))
}

func TestDecreaseStockIfEnough_Unlimited(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p, err := s.Products().Create(ctx, model.Product{Name: "ebook", Price: decimal.NewFromInt(1), Unlimited: true, IsActive: true})
	require.NoError(t, err)

	ok, err := s.Inventory().DecreaseStockIfEnough(ctx, p.ID, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), s.Stock(p.ID))

	//無い商品は「足りない」扱い
	ok, err = s.Inventory().DecreaseStockIfEnough(ctx, 999, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailAndCalls(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	down := errors.New("db down")

	s.Fail("tx.Begin", down)
	err := s.WithinTx(ctx, func(repo.TxRepos) error { return nil })
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, s.Calls("tx.Begin"))

	s.Fail("tx.Begin", nil)
	assert.NoError(t, s.WithinTx(ctx, func(repo.TxRepos) error { return nil }))
	assert.Equal(t, 2, s.Calls("tx.Begin"))
}
