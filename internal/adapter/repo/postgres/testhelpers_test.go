package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

func errRow(err error) rowStub {
	return rowStub{scan: func(_ ...any) error { return err }}
}

// txStub implements the slice of pgx.Tx the repos touch; the embedded nil
// interface panics on anything unscripted.
type txStub struct {
	pgx.Tx
	exec     func(sql string, args []any) (pgconn.CommandTag, error)
	queryRow func(sql string, args []any) pgx.Row

	committed  bool
	rolledBack bool
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.exec == nil {
		return pgconn.CommandTag{}, nil
	}
	return t.exec(sql, args)
}

func (t *txStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if t.queryRow == nil {
		return errRow(errors.New("no row configured"))
	}
	return t.queryRow(sql, args)
}

func (t *txStub) Commit(_ context.Context) error   { t.committed = true; return nil }
func (t *txStub) Rollback(_ context.Context) error { t.rolledBack = true; return nil }

// poolStub implements PgxPool for tests.
type poolStub struct {
	exec     func(sql string, args []any) (pgconn.CommandTag, error)
	queryRow func(sql string, args []any) pgx.Row
	tx       *txStub
	beginErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if p.exec == nil {
		return pgconn.CommandTag{}, nil
	}
	return p.exec(sql, args)
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if p.queryRow == nil {
		return errRow(errors.New("no row configured"))
	}
	return p.queryRow(sql, args)
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

// okTag reports one affected row; zeroTag reports none.
func okTag() pgconn.CommandTag   { return pgconn.NewCommandTag("INSERT 0 1") }
func zeroTag() pgconn.CommandTag { return pgconn.NewCommandTag("INSERT 0 0") }
