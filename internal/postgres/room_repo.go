package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type RoomRepository struct {
	db txBeginner
}

func NewRoomRepository(db txBeginner) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create сохраняет комнату вместе с начальными участниками в одной транзакции.
// Для DM повторное создание активной пары ловится уникальным индексом
// по dm_key среди активных комнат и отдаётся как ErrConflict.
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room, members []domain.Membership) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.StoreError("postgres.RoomRepository.Create", err)
	}
	defer tx.Rollback(ctx)

	var dmKey *string
	if room.Kind == domain.RoomDM {
		k := directKey(members)
		dmKey = &k
	}

	err = tx.QueryRow(ctx, queryCreateRoom,
		room.Kind, room.Name, room.Description, room.CreatedBy, room.Active, dmKey, room.CreatedAt, room.UpdatedAt,
	).Scan(&room.ID)
	if err != nil {
		return mapPgError("postgres.RoomRepository.Create", err, domain.ErrConflict)
	}

	for i := range members {
		members[i].RoomID = room.ID
		m := members[i]
		if _, err := tx.Exec(ctx, queryAddMember, m.RoomID, m.UserID, m.Role, m.JoinedAt); err != nil {
			return mapPgError("postgres.RoomRepository.Create", err, domain.ErrAlreadyJoined)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.StoreError("postgres.RoomRepository.Create", err)
	}
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	return r.getOne(ctx, "postgres.RoomRepository.Get", queryGetRoom, id)
}

// FindDirect ищет активную DM-комнату пары пользователей (порядок не важен).
func (r *RoomRepository) FindDirect(ctx context.Context, a, b domain.UserID) (*domain.Room, error) {
	key := directKey([]domain.Membership{{UserID: a}, {UserID: b}})
	return r.getOne(ctx, "postgres.RoomRepository.FindDirect", queryFindDirect, key)
}

func (r *RoomRepository) Deactivate(ctx context.Context, id domain.RoomID) error {
	cmd, err := r.db.Exec(ctx, queryDeactivateRoom, id)
	if err != nil {
		return domain.StoreError("postgres.RoomRepository.Deactivate", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) getOne(ctx context.Context, op, query string, arg any) (*domain.Room, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	room, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[domain.Room])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, domain.StoreError(op, err)
	}
	return room, nil
}

// directKey — "min:max" id пары участников DM.
func directKey(members []domain.Membership) string {
	if len(members) < 2 {
		return ""
	}
	a, b := members[0].UserID, members[1].UserID
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
