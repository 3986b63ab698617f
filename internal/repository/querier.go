// Package repository provides data access layer implementations.
// Repositories run against a Querier, satisfied by both *pgxpool.Pool and
// pgx.Tx, so the same queries serve pooled reads and transactional
// lock-then-mutate sequences.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx execution methods repositories need.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Common errors for repository operations.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrLifeNotFound           = errors.New("life balance not found")
	ErrFortuneTypeNotFound    = errors.New("fortune type not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrReadingNotFound        = errors.New("reading not found")
	ErrNoVerifiedPurchase     = errors.New("no verified purchase available")
	ErrInterpretationNotFound = errors.New("interpretation not found")
)
