package http

import (
	"github.com/nats-io/nats.go"

	"github.com/wajahatashraf/beacon-scraper/internal/adapters/postgres"
	"github.com/wajahatashraf/beacon-scraper/internal/adapters/valkey"
	"github.com/wajahatashraf/beacon-scraper/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Runs     *usecases.RunService
	Progress *usecases.ProgressService
	NATS     *nats.Conn
	DB       *postgres.DB
	Cache    *valkey.Cache
}
