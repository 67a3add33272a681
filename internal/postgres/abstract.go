package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx,
чтобы репозитории работали и с пулом, и внутри транзакции
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// txBeginner — пул, умеющий открывать транзакции.
type txBeginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapPgError переводит ошибки pgx в доменные. Всё неизвестное — ErrStore.
func mapPgError(op string, err error, onUnique error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if onUnique != nil {
				return onUnique
			}
		case pgForeignKeyViolation:
			return domain.ErrRoomNotFound
		}
	}
	return domain.StoreError(op, err)
}
