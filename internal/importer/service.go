package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ImportResult summarizes one import run
type ImportResult struct {
	BatchID    string       `json:"batch_id"`
	Filename   string       `json:"filename"`
	Rows       int          `json:"rows"`
	Inserted   int          `json:"inserted"`
	Duplicates int          `json:"duplicates"`
	Stocks     int          `json:"stocks"`
	Skipped    []SkippedRow `json:"skipped,omitempty"`
}

// Service imports transaction exports
type Service struct {
	db     *database.DB
	parser *Parser
	events *events.Manager
	log    zerolog.Logger
	now    func() time.Time
}

// NewService creates a new import service
func NewService(db *database.DB, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		parser: NewParser(),
		events: eventManager,
		log:    log.With().Str("service", "importer").Logger(),
		now:    time.Now,
	}
}

// Import parses an export and stores its stocks and transactions in one
// database transaction. Rows already stored are counted as duplicates, so
// importing the same file twice adds nothing.
func (s *Service) Import(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	start := s.now()

	rows, skipped, err := s.parser.Parse(filename, r)
	if err != nil {
		return nil, err
	}
	for _, sk := range skipped {
		s.log.Warn().Str("file", filename).Int("line", sk.Line).Str("reason", sk.Reason).Msg("Skipping row")
	}

	result := &ImportResult{
		BatchID:  uuid.NewString(),
		Filename: filename,
		Rows:     len(rows),
		Skipped:  skipped,
	}

	err = database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stocks := portfolio.NewStockRepository(tx, s.log)
		txs := portfolio.NewTransactionRepository(tx, s.log)

		stockIDs := make(map[string]int64)
		for _, row := range rows {
			id, ok := stockIDs[row.ISIN]
			if !ok {
				var err error
				id, err = stocks.Upsert(ctx, domain.Stock{
					ISIN:     row.ISIN,
					Name:     productName(row),
					Currency: row.Currency,
					Exchange: row.Exchange,
				})
				if err != nil {
					return err
				}
				stockIDs[row.ISIN] = id
			}

			added, err := txs.Insert(ctx, domain.Transaction{
				StockID:      id,
				ExecutedAt:   row.ExecutedAt,
				Quantity:     row.Quantity,
				Price:        row.Price,
				Fee:          row.Fee,
				Currency:     row.Currency,
				ValueEUR:     row.ValueEUR,
				ExchangeRate: row.ExchangeRate,
				OrderID:      row.OrderID,
				FillSeq:      row.FillSeq,
				BatchID:      result.BatchID,
			})
			if err != nil {
				return fmt.Errorf("line %d: %w", row.Line, err)
			}
			if added {
				result.Inserted++
			} else {
				result.Duplicates++
			}
		}
		result.Stocks = len(stockIDs)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO import_batches (id, filename, rows_read, rows_inserted, imported_at)
			VALUES (?, ?, ?, ?, ?)
		`, result.BatchID, filename, result.Rows, result.Inserted, start.Unix())
		if err != nil {
			return fmt.Errorf("failed to record import batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import of %s failed: %w", filename, err)
	}

	s.log.Info().
		Str("file", filename).
		Str("batch_id", result.BatchID).
		Int("rows", result.Rows).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("skipped", len(skipped)).
		Dur("duration", time.Since(start)).
		Msg("Transactions imported")

	s.events.Emit("importer", &events.TransactionsImportedData{
		BatchID:  result.BatchID,
		Filename: filename,
		Rows:     result.Rows,
		Inserted: result.Inserted,
	})
	return result, nil
}

func productName(row Row) string {
	if row.Product != "" {
		return row.Product
	}
	return row.ISIN
}
