package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"idforge/internal/identity"
	"idforge/pkg/domain"
	"idforge/pkg/platform/sentinel"
)

const schema = `
	CREATE TABLE IF NOT EXISTS saved_identities (
		id         UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name  TEXT NOT NULL,
		birthday   TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		password   TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		country    CHAR(2) NOT NULL,
		favorite   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresStore persists saved identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the saved_identities table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate saved_identities: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]identity.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, birthday, phone, password, email, country, favorite, created_at
		FROM saved_identities
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list saved identities: %w", classify(err))
	}
	defer rows.Close()

	var items []identity.Identity
	for rows.Next() {
		var (
			rawID   string
			country string
			item    identity.Identity
		)
		if err := rows.Scan(&rawID, &item.FirstName, &item.LastName, &item.Birthday, &item.Phone,
			&item.Password, &item.Email, &country, &item.Favorite, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan saved identity: %w", err)
		}
		id, err := domain.ParseIdentityID(rawID)
		if err != nil {
			return nil, fmt.Errorf("saved identity %q: %w", rawID, sentinel.ErrCorrupt)
		}
		item.ID = id
		item.Country = domain.CountryCode(country)
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list saved identities: %w", classify(err))
	}
	return items, nil
}

func (s *PostgresStore) Save(ctx context.Context, item identity.Identity) error {
	query := `
		INSERT INTO saved_identities (id, first_name, last_name, birthday, phone, password, email, country, favorite, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			birthday   = EXCLUDED.birthday,
			phone      = EXCLUDED.phone,
			password   = EXCLUDED.password,
			email      = EXCLUDED.email,
			country    = EXCLUDED.country,
			favorite   = EXCLUDED.favorite
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID.String(), item.FirstName, item.LastName, item.Birthday, item.Phone,
		item.Password, item.Email, item.Country.String(), item.Favorite, item.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", classify(err))
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.IdentityID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_identities WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete identity: %w", classify(err))
	}
	return requireRow(res)
}

func (s *PostgresStore) SetFavorite(ctx context.Context, id domain.IdentityID, favorite bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE saved_identities SET favorite = $2 WHERE id = $1`, id.String(), favorite)
	if err != nil {
		return fmt.Errorf("set favorite: %w", classify(err))
	}
	return requireRow(res)
}

// Health pings the database with a short deadline.
func (s *PostgresStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// classify marks connection-level failures as unavailable.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
