package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sfcpath/internal/model"
)

// readRecord loads the body and etag stored under (kind, name).
// Returns found=false with a nil error when no such record exists.
func readRecord(ctx context.Context, q querier, kind, name string) (body, etag string, found bool, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT body, etag FROM records
		WHERE kind = ? AND name = ?
	`, kind, key(name)).Scan(&body, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("read %s %q: %w", kind, name, err)
	}
	return body, etag, true, nil
}

// listRecords returns every body of one kind ordered by name.
func (s *Store) listRecords(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM records
		WHERE kind = ?
		ORDER BY name COLLATE BINARY ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s records: %w", kind, err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", kind, err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return bodies, nil
}

// ReadFunctionType returns the named function type.
func (s *Store) ReadFunctionType(ctx context.Context, name string) (model.FunctionType, bool, error) {
	var ft model.FunctionType
	body, _, found, err := readRecord(ctx, s.db, model.KindFunctionType, name)
	if err != nil || !found {
		return ft, false, err
	}
	if err := unmarshalRecord(model.KindFunctionType, body, &ft); err != nil {
		return ft, false, err
	}
	return ft, true, nil
}

// ReadFunction returns the named function.
func (s *Store) ReadFunction(ctx context.Context, name string) (model.Function, bool, error) {
	var fn model.Function
	body, _, found, err := readRecord(ctx, s.db, model.KindFunction, name)
	if err != nil || !found {
		return fn, false, err
	}
	if err := unmarshalRecord(model.KindFunction, body, &fn); err != nil {
		return fn, false, err
	}
	return fn, true, nil
}

// ReadForwarder returns the named forwarder with its ETag set to the stored
// revision, ready for a conditional write.
func (s *Store) ReadForwarder(ctx context.Context, name string) (model.Forwarder, bool, error) {
	var f model.Forwarder
	body, etag, found, err := readRecord(ctx, s.db, model.KindForwarder, name)
	if err != nil || !found {
		return f, false, err
	}
	if err := unmarshalRecord(model.KindForwarder, body, &f); err != nil {
		return f, false, err
	}
	f.ETag = etag
	return f, true, nil
}

// ReadPath returns the named path.
func (s *Store) ReadPath(ctx context.Context, name string) (model.Path, bool, error) {
	var p model.Path
	body, _, found, err := readRecord(ctx, s.db, model.KindPath, name)
	if err != nil || !found {
		return p, false, err
	}
	if err := unmarshalRecord(model.KindPath, body, &p); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// ListFunctionTypes returns all function types ordered by name.
func (s *Store) ListFunctionTypes(ctx context.Context) ([]model.FunctionType, error) {
	bodies, err := s.listRecords(ctx, model.KindFunctionType)
	if err != nil {
		return nil, err
	}
	out := make([]model.FunctionType, len(bodies))
	for i, body := range bodies {
		if err := unmarshalRecord(model.KindFunctionType, body, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListFunctions returns all functions ordered by name.
func (s *Store) ListFunctions(ctx context.Context) ([]model.Function, error) {
	bodies, err := s.listRecords(ctx, model.KindFunction)
	if err != nil {
		return nil, err
	}
	out := make([]model.Function, len(bodies))
	for i, body := range bodies {
		if err := unmarshalRecord(model.KindFunction, body, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListForwarders returns all forwarders ordered by name. ETags are not set;
// use ReadForwarder before a conditional write.
func (s *Store) ListForwarders(ctx context.Context) ([]model.Forwarder, error) {
	bodies, err := s.listRecords(ctx, model.KindForwarder)
	if err != nil {
		return nil, err
	}
	out := make([]model.Forwarder, len(bodies))
	for i, body := range bodies {
		if err := unmarshalRecord(model.KindForwarder, body, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListPaths returns all paths ordered by name.
func (s *Store) ListPaths(ctx context.Context) ([]model.Path, error) {
	bodies, err := s.listRecords(ctx, model.KindPath)
	if err != nil {
		return nil, err
	}
	out := make([]model.Path, len(bodies))
	for i, body := range bodies {
		if err := unmarshalRecord(model.KindPath, body, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
