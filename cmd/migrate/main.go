package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"storefront/internal/config"
	"storefront/migrations"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()

	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down]")
	}
	direction := os.Args[1]

	cfg, err := config.LoadDatabase()
	if err != nil {
		log.WithError(err).Fatal("Load config")
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("Connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Fatal("Ping database")
	}

	ran, err := migrations.Run(ctx, db, direction)
	if err != nil {
		log.WithError(err).Fatal("Run migrations")
	}
	for _, name := range ran {
		log.WithField("file", name).Info("Ran migration")
	}
	log.WithFields(logrus.Fields{"count": len(ran), "direction": direction}).Info("Migrations finished")
}
