package di

import (
	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories on top of the container's database
func InitializeRepositories(container *Container, log zerolog.Logger) {
	conn := container.DB.Conn()

	container.ClientDataRepo = clientdata.NewRepository(conn)
	container.StockRepo = portfolio.NewStockRepository(conn, log)
	container.TransactionRepo = portfolio.NewTransactionRepository(conn, log)
	container.PriceRepo = marketdata.NewPriceRepository(conn, log)
	container.IndexRepo = marketdata.NewIndexRepository(conn, log)
	container.RateRepo = marketdata.NewRateRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
}
