package main

import (
	"flag"
	"log"
	"os"

	"github.com/NordCoder/Tokengate/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status, reset")
	flag.Parse()

	dbURL := os.Getenv("DB_DSN")
	if dbURL == "" {
		log.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("set dialect: %v", err)
	}
	db, err := goose.OpenDBWithDriver("pgx", dbURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := goose.Run(*cmd, db, "."); err != nil {
		log.Fatalf("migrate %s: %v", *cmd, err)
	}
	log.Printf("migrations: %s OK", *cmd)
}
