// Package database provides the relational store connection: a GORM handle
// with connection retry, pooling, transactions and structured query logging.
//
// Two drivers are supported. Postgres runs GORM on a pgx connection pool,
// which also works behind a transaction-mode pooler when SimpleProtocol is
// set. SQLite is meant for local runs and tests.
//
//	db, err := database.Open(ctx, database.Config{
//	    Driver: database.DriverPostgres,
//	    DSN:    "postgres://crossmatch@localhost:5432/crossmatch",
//	})
//
// Component wraps DB for the bootstrap lifecycle and runs auto-migration for
// registered models on Start.
package database
