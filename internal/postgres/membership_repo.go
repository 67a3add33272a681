package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type MembershipRepository struct {
	db querier
}

func NewMembershipRepository(db querier) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// NewMembershipRepositoryFromTx — конструктор от транзакции, для составных операций.
func NewMembershipRepositoryFromTx(tx pgx.Tx) *MembershipRepository {
	return &MembershipRepository{db: tx}
}

func (r *MembershipRepository) IsMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, queryIsMember, roomID, userID).Scan(&ok); err != nil {
		return false, domain.StoreError("postgres.MembershipRepository.IsMember", err)
	}
	return ok, nil
}

func (r *MembershipRepository) HasRole(ctx context.Context, roomID domain.RoomID, userID domain.UserID, role domain.Role) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, queryHasRole, roomID, userID, role).Scan(&ok); err != nil {
		return false, domain.StoreError("postgres.MembershipRepository.HasRole", err)
	}
	return ok, nil
}

func (r *MembershipRepository) ListMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, queryListMembers, roomID)
	if err != nil {
		return nil, domain.StoreError("postgres.MembershipRepository.ListMembers", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByName[domain.Membership])
	if err != nil {
		return nil, domain.StoreError("postgres.MembershipRepository.ListMembers", err)
	}
	return list, nil
}

// AddMember — повторное добавление ловится первичным ключом (room_id, user_id).
func (r *MembershipRepository) AddMember(ctx context.Context, m domain.Membership) error {
	_, err := r.db.Exec(ctx, queryAddMember, m.RoomID, m.UserID, m.Role, m.JoinedAt)
	return mapPgError("postgres.MembershipRepository.AddMember", err, domain.ErrAlreadyJoined)
}

func (r *MembershipRepository) RemoveMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	cmd, err := r.db.Exec(ctx, queryRemoveMember, roomID, userID)
	if err != nil {
		return domain.StoreError("postgres.MembershipRepository.RemoveMember", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}
