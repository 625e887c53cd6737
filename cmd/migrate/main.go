// Command migrate applies the SQL files in migrations/ in lexical order.
package main

import (
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

func main() {
	var (
		dir      = flag.String("dir", "migrations", "directory holding *.sql migration files")
		listOnly = flag.Bool("list", false, "list public tables instead of migrating")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database unreachable")
	}

	if *listOnly {
		listTables(db, log)
		return
	}

	names, err := migrationFiles(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("reading migrations directory")
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(*dir, name))
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("reading migration")
		}
		if _, err := db.Exec(string(data)); err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("applying migration")
		}
		log.Info().Str("file", name).Msg("migration applied")
	}
	log.Info().Int("count", len(names)).Msg("migrations complete")
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func listTables(db *sql.DB, log zerolog.Logger) {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' ORDER BY tablename")
	if err != nil {
		log.Fatal().Err(err).Msg("listing tables")
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			log.Fatal().Err(err).Msg("scanning table name")
		}
		log.Info().Str("table", table).Msg("found")
		n++
	}
	if err := rows.Err(); err != nil {
		log.Fatal().Err(err).Msg("listing tables")
	}
	log.Info().Int("count", n).Msg("tables listed")
}
