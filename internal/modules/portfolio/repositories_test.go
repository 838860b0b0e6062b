package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	testutil "github.com/degiro-portfolio/degiro-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockRepository_UpsertKeepsTickerAndCurrency(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	repo := NewStockRepository(db.Conn(), zerolog.Nop())

	id, err := repo.Upsert(ctx, domain.Stock{ISIN: "US5949181045", Name: "MICROSOFT CORP", Currency: domain.CurrencyUSD, Exchange: "NDQ"})
	require.NoError(t, err)
	require.NoError(t, repo.SetTicker(ctx, id, "MSFT"))

	again, err := repo.Upsert(ctx, domain.Stock{ISIN: "US5949181045", Name: "Microsoft Corporation", Currency: domain.CurrencyEUR})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	stock, err := repo.GetByISIN(ctx, "US5949181045")
	require.NoError(t, err)
	assert.Equal(t, "Microsoft Corporation", stock.Name)
	assert.Equal(t, "MSFT", stock.Ticker)
	assert.Equal(t, domain.CurrencyUSD, stock.Currency)
	assert.Equal(t, "NDQ", stock.Exchange)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStockRepository_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewStockRepository(db.Conn(), zerolog.Nop())

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(repo.SetTicker(context.Background(), 99, "X")))
}

func TestTransactionRepository_InsertIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	stocks := NewStockRepository(db.Conn(), zerolog.Nop())
	repo := NewTransactionRepository(db.Conn(), zerolog.Nop())

	id, err := stocks.Upsert(ctx, domain.Stock{ISIN: "NL0010273215", Name: "ASML HOLDING", Currency: domain.CurrencyEUR})
	require.NoError(t, err)

	rate := 1.0
	tx := domain.Transaction{
		StockID:      id,
		ExecutedAt:   time.Date(2024, 2, 1, 9, 31, 0, 0, time.UTC),
		Quantity:     3,
		Price:        790.5,
		Fee:          2,
		Currency:     domain.CurrencyEUR,
		ExchangeRate: &rate,
		OrderID:      "a1b2",
		BatchID:      "batch-1",
	}

	added, err := repo.Insert(ctx, tx)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Insert(ctx, tx)
	require.NoError(t, err)
	assert.False(t, added)

	sell := tx
	sell.ExecutedAt = tx.ExecutedAt.AddDate(0, 1, 0)
	sell.Quantity = -1
	sell.OrderID = ""
	_, err = repo.Insert(ctx, sell)
	require.NoError(t, err)

	list, err := repo.ListByStock(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].IsBuy())
	assert.True(t, list[1].IsSell())
	assert.Equal(t, tx.ExecutedAt, list[0].ExecutedAt)
	require.NotNil(t, list[0].ExchangeRate)
	assert.Nil(t, list[0].ValueEUR)
	assert.Equal(t, "batch-1", list[0].BatchID)

	counts, err := repo.CountByStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[id])

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all[id], 2)
}
