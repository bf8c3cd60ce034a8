package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sfcpath/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// writeRecord upserts a record unconditionally and returns its new etag.
func writeRecord(ctx context.Context, q querier, kind, name string, v any) (string, error) {
	body, etag, err := marshalRecord(kind, v)
	if err != nil {
		return "", err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (kind, name, body, etag)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, name) DO UPDATE SET body = excluded.body, etag = excluded.etag
	`, kind, key(name), body, etag)
	if err != nil {
		return "", fmt.Errorf("write %s %q: %w", kind, name, err)
	}
	return etag, nil
}

// WriteFunctionType stores ft, replacing any existing record.
func (s *Store) WriteFunctionType(ctx context.Context, ft model.FunctionType) error {
	ft.Name = key(ft.Name)
	_, err := writeRecord(ctx, s.db, model.KindFunctionType, ft.Name, ft)
	return err
}

// WriteFunction stores fn, replacing any existing record.
func (s *Store) WriteFunction(ctx context.Context, fn model.Function) error {
	fn.Name = key(fn.Name)
	_, err := writeRecord(ctx, s.db, model.KindFunction, fn.Name, fn)
	return err
}

// WriteForwarderIf stores f only if the stored record still carries etag.
// An empty etag means the forwarder must not exist yet. Returns the new etag,
// or ErrConflict if another writer got there first.
//
// Every dictionary entry is re-owned by f before the write.
func (s *Store) WriteForwarderIf(ctx context.Context, f model.Forwarder, etag string) (string, error) {
	f = normalizeForwarder(f)
	body, next, err := marshalRecord(model.KindForwarder, f)
	if err != nil {
		return "", err
	}

	var res sql.Result
	if etag == "" {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO records (kind, name, body, etag)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(kind, name) DO NOTHING
		`, model.KindForwarder, f.Name, body, next)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE records SET body = ?, etag = ?
			WHERE kind = ? AND name = ? AND etag = ?
		`, body, next, model.KindForwarder, f.Name, etag)
	}
	if err != nil {
		return "", fmt.Errorf("write forwarder %q: %w", f.Name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("write forwarder %q: rows affected: %w", f.Name, err)
	}
	if n == 0 {
		return "", fmt.Errorf("write forwarder %q: %w", f.Name, ErrConflict)
	}
	return next, nil
}

// CommitPath allocates the next path id and stores p under it in a single
// transaction. On any failure nothing is written and the sequence keeps its
// previous value.
//
// p.Name is re-derived from p.Chain and ServiceIndex from the hop count.
func (s *Store) CommitPath(ctx context.Context, p model.Path) (model.Path, error) {
	committed := model.NewPath(key(p.Chain), p.Hops)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Path{}, fmt.Errorf("commit path: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	err = tx.QueryRowContext(ctx, `
		UPDATE sequences SET value = value + 1
		WHERE name = ?
		RETURNING value
	`, SequencePathID).Scan(&committed.PathID)
	if err != nil {
		return model.Path{}, fmt.Errorf("commit path: allocate id: %w", err)
	}

	if _, err := writeRecord(ctx, tx, model.KindPath, committed.Name, committed); err != nil {
		return model.Path{}, fmt.Errorf("commit path: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Path{}, fmt.Errorf("commit path: commit: %w", err)
	}
	return committed, nil
}

// DeletePath removes the named path. Returns false if it did not exist.
func (s *Store) DeletePath(ctx context.Context, name string) (bool, error) {
	return s.deleteRecord(ctx, model.KindPath, name)
}

func (s *Store) deleteRecord(ctx context.Context, kind, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE kind = ? AND name = ?
	`, kind, key(name))
	if err != nil {
		return false, fmt.Errorf("delete %s %q: %w", kind, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s %q: rows affected: %w", kind, name, err)
	}
	return n > 0, nil
}
