package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"entgo.io/ent/dialect"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/advisorlens/internal/activity"
	"github.com/matthewbaird/advisorlens/internal/apiclient"
	"github.com/matthewbaird/advisorlens/internal/catalog"
	"github.com/matthewbaird/advisorlens/internal/config"
	"github.com/matthewbaird/advisorlens/internal/daterange"
	"github.com/matthewbaird/advisorlens/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (default: ./advisorlens.yaml if present)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	views, err := catalog.Load(cfg.Views.File)
	if err != nil {
		log.Fatalf("loading views: %v", err)
	}

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer closeStore()

	if cfg.Seed {
		if err := activity.SeedDemoData(ctx, store, time.Now()); err != nil {
			log.Fatalf("seeding: %v", err)
		}
	}

	var src apiclient.Source = activity.NewLocalSource(store)
	if cfg.API.Remote() {
		src = apiclient.New(cfg.API.BaseURL,
			apiclient.WithToken(cfg.API.Token),
			apiclient.WithTimeout(cfg.API.Timeout),
		)
		log.Printf("explorer reads feeds from %s", cfg.API.BaseURL)
	}

	if err := server.Run(ctx, server.Config{
		Port:     cfg.Port,
		Store:    store,
		Source:   src,
		Catalog:  views,
		Resolver: daterange.Resolver{DefaultWindow: cfg.Window()},
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore opens the feed database and makes sure its table exists.
func openStore(ctx context.Context, dbCfg config.DatabaseConfig) (activity.Store, func(), error) {
	driverName, entDialect := "sqlite", dialect.SQLite
	if dbCfg.Driver == config.DriverPostgres {
		driverName, entDialect = "postgres", dialect.Postgres
	}

	db, err := sql.Open(driverName, dbCfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if entDialect == dialect.SQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := activity.NewSQLStore(db, entDialect)
	if err := store.CreateTable(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Printf("%s feed store ready", dbCfg.Driver)
	return store, func() { db.Close() }, nil
}
