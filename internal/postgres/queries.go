package postgres

const (
	queryCreateRoom = `
		INSERT INTO chat_rooms (kind, name, description, created_by, is_active, dm_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	queryGetRoom = `
		SELECT id, kind, name, description, created_by, is_active, created_at, updated_at
		FROM chat_rooms
		WHERE id = $1`
	queryFindDirect = `
		SELECT id, kind, name, description, created_by, is_active, created_at, updated_at
		FROM chat_rooms
		WHERE dm_key = $1 AND is_active
		LIMIT 1`
	queryDeactivateRoom = `
		UPDATE chat_rooms SET is_active = FALSE, updated_at = now()
		WHERE id = $1`

	queryAddMember = `
		INSERT INTO room_members (room_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)`
	queryIsMember = `
		SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`
	queryHasRole = `
		SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2 AND role = $3)`
	queryListMembers = `
		SELECT room_id, user_id, role, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC, user_id ASC`
	queryRemoveMember = `
		DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`
)
