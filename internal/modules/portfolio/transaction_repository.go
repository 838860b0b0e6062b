package portfolio

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
)

// TransactionRepository handles transaction database operations.
// Transactions are immutable: rows are only inserted, and removed by a purge.
type TransactionRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db database.Querier, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

const transactionColumns = `id, stock_id, executed_at, quantity, price, fee, currency, value_eur, exchange_rate, order_id, fill_seq, batch_id`

// Insert stores a transaction unless an identical one exists. Identical fills of one
// export differ by FillSeq, so only a re-import is ignored. It reports whether a row was added.
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(stock_id, executed_at, quantity, price, fee, currency, value_eur, exchange_rate, order_id, fill_seq, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.StockID, tx.ExecutedAt.Unix(), tx.Quantity, tx.Price, tx.Fee, string(tx.Currency),
		nullFloat(tx.ValueEUR), nullFloat(tx.ExchangeRate), tx.OrderID, tx.FillSeq, nullString(tx.BatchID))
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction for stock %d: %w", tx.StockID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// ListByStock returns the transactions of a stock in execution order
func (r *TransactionRepository) ListByStock(ctx context.Context, stockID int64) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE stock_id = ? ORDER BY executed_at, id", stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions of stock %d: %w", stockID, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListAll returns every transaction grouped by stock id
func (r *TransactionRepository) ListAll(ctx context.Context) (map[int64][]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY stock_id, executed_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int64][]domain.Transaction)
	for _, tx := range txs {
		grouped[tx.StockID] = append(grouped[tx.StockID], tx)
	}
	return grouped, nil
}

// CountByStock returns the number of transactions per stock id
func (r *TransactionRepository) CountByStock(ctx context.Context) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT stock_id, COUNT(*) FROM transactions GROUP BY stock_id")
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan transaction count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var (
			tx           domain.Transaction
			executedAt   int64
			currency     string
			valueEUR     sql.NullFloat64
			exchangeRate sql.NullFloat64
			batchID      sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.StockID, &executedAt, &tx.Quantity, &tx.Price, &tx.Fee,
			&currency, &valueEUR, &exchangeRate, &tx.OrderID, &tx.FillSeq, &batchID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ExecutedAt = database.FromUnix(executedAt)
		tx.Currency = domain.Currency(currency)
		if valueEUR.Valid {
			v := valueEUR.Float64
			tx.ValueEUR = &v
		}
		if exchangeRate.Valid {
			v := exchangeRate.Float64
			tx.ExchangeRate = &v
		}
		if batchID.Valid {
			tx.BatchID = batchID.String
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
