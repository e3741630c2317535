package app

import (
	"github.com/seanotes/seanotes/internal/app/storage/postgres"
)

// PostgresStores backs every store with a single PostgreSQL store.
func PostgresStores(store *postgres.Store) Stores {
	return Stores{
		Users:         store,
		Subscriptions: store,
		Notes:         store,
		Chunks:        store,
		Environments:  store,
		Tokens:        store,
		Invoices:      store,
		Pinger:        store,
		Backend:       "postgres",
	}
}
