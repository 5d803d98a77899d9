package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	logx "pricebot/pkg/logx"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS services(
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	enabled BOOLEAN NOT NULL,
	creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Debug("postgres store ready")
	return &postgresStore{db: db, log: log}, nil
}

func (p *postgresStore) Close() error { return p.db.Close() }

func (p *postgresStore) FindByName(ctx context.Context, name string) (Record, error) {
	var rec Record
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, enabled, creation_time FROM services WHERE name = $1`, name).
		Scan(&rec.ID, &rec.Name, &rec.Enabled, &rec.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (p *postgresStore) Insert(ctx context.Context, name string, enabled bool) (Record, error) {
	var rec Record
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO services(name, enabled) VALUES($1, $2)
		 RETURNING id, name, enabled, creation_time`, name, enabled).
		Scan(&rec.ID, &rec.Name, &rec.Enabled, &rec.CreationTime)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		return Record{}, err
	}
	return rec, nil
}

func (p *postgresStore) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE services SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, enabled, creation_time FROM services ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Enabled, &rec.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
