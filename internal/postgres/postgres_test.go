package postgres

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

func TestMapPgError(t *testing.T) {
	require.NoError(t, mapPgError("op", nil, domain.ErrAlreadyJoined))

	dup := &pgconn.PgError{Code: pgUniqueViolation}
	require.ErrorIs(t, mapPgError("op", dup, domain.ErrAlreadyJoined), domain.ErrAlreadyJoined)
	require.ErrorIs(t, mapPgError("op", dup, domain.ErrAlreadyJoined), domain.ErrConflict)

	fk := &pgconn.PgError{Code: pgForeignKeyViolation}
	require.ErrorIs(t, mapPgError("op", fk, nil), domain.ErrRoomNotFound)

	err := mapPgError("op", errors.New("conn reset"), nil)
	require.ErrorIs(t, err, domain.ErrStore)
	require.Contains(t, err.Error(), "conn reset")

	// без явной ошибки для unique violation — это сбой хранилища
	require.ErrorIs(t, mapPgError("op", dup, nil), domain.ErrStore)
}

func TestDirectKey(t *testing.T) {
	require.Equal(t, "3:7", directKey([]domain.Membership{{UserID: 7}, {UserID: 3}}))
	require.Equal(t, "3:7", directKey([]domain.Membership{{UserID: 3}, {UserID: 7}}))
	require.Equal(t, "", directKey([]domain.Membership{{UserID: 3}}))
}

func TestMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("b")},
		"m/0001_a.up.sql":   {Data: []byte("a")},
		"m/0001_a.down.sql": {Data: []byte("x")},
		"m/README.md":       {Data: []byte("x")},
	}
	files, err := migrationFiles(fsys, "m")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, files)

	embedded, err := migrationFiles(migrationsFS, "migrations")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_chat_rooms.up.sql", "0002_room_members.up.sql", "0003_dm_key_active.up.sql"}, embedded)
}

// Деактивированный DM не должен держать dm_key: иначе пару нельзя создать заново.
func TestMigrations_DMKeyUniqueAmongActive(t *testing.T) {
	body, err := fs.ReadFile(migrationsFS, "migrations/0003_dm_key_active.up.sql")
	require.NoError(t, err)
	sql := strings.Join(strings.Fields(string(body)), " ")

	require.Contains(t, sql, "DROP CONSTRAINT IF EXISTS chat_rooms_dm_key_key")
	require.Contains(t, sql, "CREATE UNIQUE INDEX IF NOT EXISTS chat_rooms_dm_key_active_idx ON chat_rooms (dm_key) WHERE is_active")

	// поиск DM смотрит только на активные комнаты, как и индекс
	require.Contains(t, queryFindDirect, "AND is_active")
}
