package storage

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"scanner_bot/internal/ai"
	"scanner_bot/internal/models"
	"scanner_bot/pkg/db"
)

// Repo — персистенс сканера: пул подтверждения, история сигналов,
// состояние AI-модели и тюнера. Схема создаётся на старте; сбои
// записи не валят процесс — сканер переживает и без базы.
type Repo struct {
	tx db.TxManager
}

func New(tx db.TxManager) *Repo {
	return &Repo{tx: tx}
}

const schema = `
CREATE TABLE IF NOT EXISTS pending_signals (
	id         BIGINT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS signal_records (
	id          BIGINT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	payload     JSONB NOT NULL,
	resolved_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS scanner_state (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func (r *Repo) EnsureSchema(ctx context.Context) (err error) {
	defer func() { err = errors.Wrap(err, "Repo.EnsureSchema") }()
	return r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, schema)
		return err
	})
}

// SavePool перезаписывает пул целиком: записей мало, снапшот проще
// инкрементальных апдейтов.
func (r *Repo) SavePool(ctx context.Context, items []*models.PendingSignal) (err error) {
	defer func() { err = errors.Wrap(err, "Repo.SavePool") }()
	return r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM pending_signals`); err != nil {
			return err
		}
		for _, ps := range items {
			data, err := sonic.Marshal(ps)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO pending_signals (id, symbol, payload, created_at) VALUES ($1, $2, $3, $4)`,
				ps.ID, ps.Candidate.Symbol, data, ps.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repo) LoadPool(ctx context.Context) (items []*models.PendingSignal, err error) {
	defer func() { err = errors.Wrap(err, "Repo.LoadPool") }()
	err = r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT payload FROM pending_signals ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			var ps models.PendingSignal
			if err := sonic.Unmarshal(data, &ps); err != nil {
				return err
			}
			items = append(items, &ps)
		}
		return rows.Err()
	})
	return items, err
}

// SaveRecord — upsert записи трекинга: и постановка на сопровождение,
// и фиксация исхода идут одним путём.
func (r *Repo) SaveRecord(ctx context.Context, rec *models.SignalRecord) (err error) {
	defer func() { err = errors.Wrap(err, "Repo.SaveRecord") }()
	data, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}
	return r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO signal_records (id, symbol, outcome, payload, resolved_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET outcome = EXCLUDED.outcome, payload = EXCLUDED.payload, resolved_at = EXCLUDED.resolved_at`,
			rec.ID, rec.Symbol, string(rec.Outcome), data, rec.ResolvedAt)
		return err
	})
}

func (r *Repo) LoadRecords(ctx context.Context, limit int) (recs []*models.SignalRecord, err error) {
	defer func() { err = errors.Wrap(err, "Repo.LoadRecords") }()
	err = r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT payload FROM (
				SELECT payload, id FROM signal_records ORDER BY id DESC LIMIT $1
			) t ORDER BY id`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			var rec models.SignalRecord
			if err := sonic.Unmarshal(data, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
		}
		return rows.Err()
	})
	return recs, err
}

const (
	keyAIState    = "ai_model"
	keyTunerState = "tuner"
)

func (r *Repo) SaveAIState(ctx context.Context, st ai.State) error {
	return errors.Wrap(r.saveState(ctx, keyAIState, st), "Repo.SaveAIState")
}

func (r *Repo) LoadAIState(ctx context.Context) (st ai.State, ok bool, err error) {
	ok, err = r.loadState(ctx, keyAIState, &st)
	return st, ok, errors.Wrap(err, "Repo.LoadAIState")
}

func (r *Repo) SaveTunerState(ctx context.Context, ts *models.TunerState) error {
	return errors.Wrap(r.saveState(ctx, keyTunerState, ts), "Repo.SaveTunerState")
}

func (r *Repo) LoadTunerState(ctx context.Context) (ts *models.TunerState, ok bool, err error) {
	ts = &models.TunerState{}
	ok, err = r.loadState(ctx, keyTunerState, ts)
	return ts, ok, errors.Wrap(err, "Repo.LoadTunerState")
}

func (r *Repo) saveState(ctx context.Context, key string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO scanner_state (key, payload, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
			key, data)
		return err
	})
}

func (r *Repo) loadState(ctx context.Context, key string, out any) (found bool, err error) {
	err = r.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var data []byte
		err := tx.QueryRow(ctx, `SELECT payload FROM scanner_state WHERE key = $1`, key).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return sonic.Unmarshal(data, out)
	})
	return found, err
}
