package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads e-mail contacts from the user_contacts table.
type PostgresDirectory struct {
	db rowQuerier
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresDirectory{db: pool}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, userID string) (Contact, error) {
	var c Contact
	err := d.db.QueryRow(ctx,
		`SELECT email, COALESCE(display_name, '') FROM user_contacts WHERE user_id = $1 AND email_opt_in`,
		userID,
	).Scan(&c.Email, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNoContact
	}
	if err != nil {
		return Contact{}, fmt.Errorf("notify: lookup contact: %w", err)
	}
	if c.Email == "" {
		return Contact{}, ErrNoContact
	}
	return c, nil
}
