package sqlstore

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/tiercache/driver"
)

// AddBinding persists one event binding row. Bindings never expire; they are
// removed only by DeleteBindings.
func (s *Store) AddBinding(ctx context.Context, b driver.Binding) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_bindings (event, name, realm, tier) VALUES (?, ?, ?, ?)`,
		b.Event, b.ID, b.Realm, int(b.Tier))
	if err != nil {
		return fmt.Errorf("sqlstore: add binding %q -> %q/%q: %w", b.Event, b.Realm, b.ID, err)
	}
	return nil
}

// AddBindings persists a batch of binding rows in one transaction and
// returns the number added.
func (s *Store) AddBindings(ctx context.Context, bs []driver.Binding) (int, error) {
	if len(bs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: add bindings: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_bindings (event, name, realm, tier) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: add bindings: %w", err)
	}
	defer stmt.Close()

	for _, b := range bs {
		if _, err := stmt.ExecContext(ctx, b.Event, b.ID, b.Realm, int(b.Tier)); err != nil {
			return 0, fmt.Errorf("sqlstore: add binding %q -> %q/%q: %w", b.Event, b.Realm, b.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: add bindings: %w", err)
	}
	return len(bs), nil
}

// DeleteBindings removes binding rows scoped to realm, optionally narrowed to
// one entry id (empty id matches the whole realm). Returns rows removed.
func (s *Store) DeleteBindings(ctx context.Context, realm, id string) (int64, error) {
	var (
		res interface{ RowsAffected() (int64, error) }
		err error
	)
	if id == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_bindings WHERE realm = ?`, realm)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_bindings WHERE realm = ? AND name = ?`, realm, id)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: delete bindings %q/%q: %w", realm, id, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AllBindings returns every persisted binding row. Used to rebuild the
// controller's in-process mirror when it is cold.
func (s *Store) AllBindings(ctx context.Context) ([]driver.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event, name, realm, tier FROM cache_bindings`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: all bindings: %w", err)
	}
	defer rows.Close()

	var out []driver.Binding
	for rows.Next() {
		var b driver.Binding
		var tier int
		if err := rows.Scan(&b.Event, &b.ID, &b.Realm, &tier); err != nil {
			return nil, fmt.Errorf("sqlstore: all bindings: %w", err)
		}
		b.Tier = driver.Tier(tier)
		out = append(out, b)
	}
	return out, rows.Err()
}
