package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mpetrenko/postqueue/internal/cryptox"
	"github.com/mpetrenko/postqueue/internal/repository"
)

// DBTX is the subset of pgxpool.Pool and pgx.Tx the repositories rely on
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db DBTX

	// box seals credential tokens before they hit the table
	box *cryptox.Box
}

func NewStorage(db DBTX, box *cryptox.Box) repository.Storage {
	return &Storage{db: db, box: box}
}

func (s *Storage) Sessions() repository.SessionRepo {
	return &SessionRepo{DB: s.db}
}

func (s *Storage) Credentials() repository.CredentialRepo {
	return &CredentialRepo{DB: s.db, Box: s.box}
}

func (s *Storage) Posts() repository.PostRepo {
	return &PostRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx, s.box))

	return err
}
