package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Консольный отчёт по истории сигналов: итоги, winrate, pnl, причины
// стопов. Читает ту же базу, что и бот.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	v.SetConfigName("values_local")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "read config")
	}
	dsn := v.GetString("db_dsn")
	if env := os.Getenv("DATABASE_DSN"); env != "" {
		dsn = env
	}
	if dsn == "" {
		return errors.New("db_dsn is empty")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT outcome, count(*),
		       coalesce(sum((payload->>'PnlPct')::float8), 0)
		FROM signal_records
		GROUP BY outcome
		ORDER BY outcome`)
	if err != nil {
		return errors.Wrap(err, "query outcomes")
	}
	defer rows.Close()

	var (
		total, wins, losses int
		totalPnl            float64
	)
	fmt.Println("Исходы:")
	for rows.Next() {
		var outcome string
		var n int
		var pnl float64
		if err := rows.Scan(&outcome, &n, &pnl); err != nil {
			return errors.Wrap(err, "scan")
		}
		fmt.Printf("  %-10s %5d  pnl %+.2f%%\n", outcome, n, pnl)
		total += n
		switch outcome {
		case "TP1", "TP2", "TP3":
			wins += n
			totalPnl += pnl
		case "SL":
			losses += n
			totalPnl += pnl
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "rows")
	}

	fmt.Printf("\nВсего: %d | выигрышей: %d | стопов: %d\n", total, wins, losses)
	if wins+losses > 0 {
		fmt.Printf("Winrate: %.1f%% | суммарный pnl: %+.2f%%\n",
			100*float64(wins)/float64(wins+losses), totalPnl)
	}

	causeRows, err := pool.Query(ctx, `
		SELECT payload->>'SLCause', count(*)
		FROM signal_records
		WHERE outcome = 'SL'
		GROUP BY 1 ORDER BY 2 DESC`)
	if err != nil {
		return errors.Wrap(err, "query sl causes")
	}
	defer causeRows.Close()

	first := true
	for causeRows.Next() {
		var cause *string
		var n int
		if err := causeRows.Scan(&cause, &n); err != nil {
			return errors.Wrap(err, "scan cause")
		}
		if first {
			fmt.Println("\nПричины стопов:")
			first = false
		}
		name := "-"
		if cause != nil {
			name = *cause
		}
		fmt.Printf("  %-20s %d\n", name, n)
	}
	return errors.Wrap(causeRows.Err(), "cause rows")
}
