package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cwrk-planet/chat-service/internal/docstore"
	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service/mocks"
)

const (
	alice domain.UserID = 1
	bob   domain.UserID = 2
	carol domain.UserID = 3
	room7 domain.RoomID = 7
	room8 domain.RoomID = 8
)

type msgEnv struct {
	svc      *MessageService
	members  *fakeMembers
	rooms    *fakeRooms
	messages *fakeMessages
	pub      *recordingPublisher
}

func newMsgEnv(t *testing.T) *msgEnv {
	t.Helper()
	members := newFakeMembers()
	members.add(room7, alice, domain.RoleAdmin)
	members.add(room7, bob, domain.RoleMember)
	members.add(room7, carol, domain.RoleMember)
	members.add(room8, alice, domain.RoleAdmin)

	rooms := newFakeRooms(
		domain.Room{ID: room7, Kind: domain.RoomGroup, CreatedBy: alice, Active: true},
		domain.Room{ID: room8, Kind: domain.RoomGroup, CreatedBy: alice, Active: true},
	)
	messages := newFakeMessages()
	pub := &recordingPublisher{}
	svc := NewMessageService(messages, rooms, NewAuthorizer(members), pub, MessageConfig{})
	return &msgEnv{svc: svc, members: members, rooms: rooms, messages: messages, pub: pub}
}

func TestAuthorize_IffMembership(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMembershipStore(ctrl)
	guard := NewAuthorizer(store)
	ctx := context.Background()

	store.EXPECT().IsMember(ctx, room7, alice).Return(true, nil)
	require.NoError(t, guard.Authorize(ctx, alice, ActionPublish, room7))

	store.EXPECT().IsMember(ctx, room7, bob).Return(false, nil)
	err := guard.Authorize(ctx, bob, ActionSubscribe, room7)
	require.ErrorIs(t, err, domain.ErrNotMember)
	require.ErrorIs(t, err, domain.ErrAuthorization)

	// без личности в хранилище не ходим
	require.ErrorIs(t, guard.Authorize(ctx, 0, ActionPublish, room7), domain.ErrUnauthenticated)

	storeErr := domain.StoreError("op", errors.New("boom"))
	store.EXPECT().IsMember(ctx, room7, carol).Return(false, storeErr)
	require.ErrorIs(t, guard.Authorize(ctx, carol, ActionPublish, room7), domain.ErrStore)
}

func TestCreate_RoundTrip(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room7, alice, "  hello ", "")
	require.NoError(t, err)
	require.Equal(t, "hello", m.Content)
	require.Equal(t, domain.MessageText, m.Type)
	require.False(t, m.CreatedAt.IsZero())

	page, err := env.svc.ListHistory(ctx, room7, 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	got := page.Items[0]
	require.Equal(t, "hello", got.Content)
	require.Equal(t, alice, got.SenderID)
	require.False(t, got.Edited)
	require.False(t, got.Deleted)

	evs := env.pub.all()
	require.Len(t, evs, 1)
	require.Equal(t, "room/7", evs[0].dest)
	require.Equal(t, domain.EventMessageCreated, evs[0].ev.Type)
}

func TestCreate_Validation(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, room7, alice, strings.Repeat("a", 5001), domain.MessageText)
	require.ErrorIs(t, err, domain.ErrContentTooLong)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.Create(ctx, room7, alice, "   ", domain.MessageText)
	require.ErrorIs(t, err, domain.ErrEmptyContent)

	_, err = env.svc.Create(ctx, room7, alice, "x", domain.MessageSystem)
	require.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = env.svc.Create(ctx, room7, alice, "x", "VIDEO")
	require.ErrorIs(t, err, domain.ErrInvalidType)

	require.Empty(t, env.messages.docs)
	require.Empty(t, env.pub.all())

	// длина считается в символах, а не в байтах
	_, err = env.svc.Create(ctx, room7, alice, strings.Repeat("я", 5000), domain.MessageText)
	require.NoError(t, err)
}

func TestCreate_NonMemberAndInactive(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, room8, bob, "hi", domain.MessageText)
	require.ErrorIs(t, err, domain.ErrAuthorization)

	env.rooms.rooms[room8].Active = false
	_, err = env.svc.Create(ctx, room8, alice, "hi", domain.MessageText)
	require.ErrorIs(t, err, domain.ErrRoomInactive)
	require.ErrorIs(t, err, domain.ErrConflict)

	require.Empty(t, env.pub.all())
}

func TestRemovedMemberBlockedOthersContinue(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	require.NoError(t, env.members.RemoveMember(ctx, room7, alice))

	_, err := env.svc.Create(ctx, room7, alice, "still here?", domain.MessageText)
	require.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = env.svc.Create(ctx, room7, carol, "hello bob", domain.MessageText)
	require.NoError(t, err)
	evs := env.pub.all()
	require.Len(t, evs, 1)
	require.Equal(t, "room/7", evs[0].dest)
}

func TestEdit_Scenario(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room7, alice, "hi", domain.MessageText)
	require.NoError(t, err)

	edited, err := env.svc.Edit(ctx, room7, m.ID, alice, "bye")
	require.NoError(t, err)
	require.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	page, err := env.svc.ListHistory(ctx, room7, 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "bye", page.Items[0].Content)
	require.True(t, page.Items[0].Edited)
	require.NotNil(t, page.Items[0].EditedAt)
	require.True(t, page.Items[0].EditedAt.After(page.Items[0].CreatedAt))

	evs := env.pub.all()
	require.Len(t, evs, 2)
	require.Equal(t, "room/7/edit", evs[1].dest)
	require.Equal(t, domain.EventMessageEdited, evs[1].ev.Type)
}

func TestOwnershipAsymmetry(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room7, bob, "mine", domain.MessageText)
	require.NoError(t, err)

	// alice — админ комнаты, но не автор
	_, err = env.svc.Edit(ctx, room7, m.ID, alice, "theirs")
	require.ErrorIs(t, err, domain.ErrNotMessageOwner)
	require.ErrorIs(t, err, domain.ErrForbidden)

	err = env.svc.SoftDelete(ctx, room7, m.ID, carol)
	require.ErrorIs(t, err, domain.ErrForbidden)

	got, err := env.messages.FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, "mine", got.Content)
	require.False(t, got.Deleted)
}

// Не-участник отсекается до загрузки сообщения: ErrNotMember, а не ErrNotMessageOwner.
func TestEdit_MembershipBeforeOwnership(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room8, alice, "in 8", domain.MessageText)
	require.NoError(t, err)

	_, err = env.svc.Edit(ctx, room8, m.ID, bob, "x")
	require.ErrorIs(t, err, domain.ErrNotMember)
	require.NotErrorIs(t, err, domain.ErrNotMessageOwner)
	require.ErrorIs(t, env.svc.SoftDelete(ctx, room8, m.ID, bob), domain.ErrNotMember)

	// участник, но не автор
	env.members.add(room8, bob, domain.RoleMember)
	_, err = env.svc.Edit(ctx, room8, m.ID, bob, "x")
	require.ErrorIs(t, err, domain.ErrNotMessageOwner)
}

// pausingStore останавливает первый вызов Mutate после чтения документа,
// пока тест не выполнит конкурирующую операцию.
type pausingStore struct {
	MessageStore
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingStore) Mutate(ctx context.Context, id string, fn func(*domain.Message) (bool, error)) (*domain.Message, error) {
	return p.MessageStore.Mutate(ctx, id, func(m *domain.Message) (bool, error) {
		if p.armed.CompareAndSwap(true, false) {
			close(p.paused)
			<-p.release
		}
		return fn(m)
	})
}

func TestEditRacingDelete_DeleteStays(t *testing.T) {
	ctx := context.Background()
	db, err := docstore.Open(docstore.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo, err := docstore.NewMessageRepository(db)
	require.NoError(t, err)

	store := &pausingStore{MessageStore: repo, paused: make(chan struct{}), release: make(chan struct{})}
	members := newFakeMembers()
	members.add(room7, alice, domain.RoleAdmin)
	rooms := newFakeRooms(domain.Room{ID: room7, Kind: domain.RoomGroup, CreatedBy: alice, Active: true})
	pub := &recordingPublisher{}
	svc := NewMessageService(store, rooms, NewAuthorizer(members), pub, MessageConfig{})

	m, err := svc.Create(ctx, room7, alice, "original", domain.MessageText)
	require.NoError(t, err)

	store.armed.Store(true)
	editErr := make(chan error, 1)
	go func() {
		_, err := svc.Edit(ctx, room7, m.ID, alice, "edited")
		editErr <- err
	}()

	<-store.paused
	require.NoError(t, svc.SoftDelete(ctx, room7, m.ID, alice))
	close(store.release)

	require.ErrorIs(t, <-editErr, domain.ErrMessageDeleted)

	got, err := repo.FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.False(t, got.Edited)
	require.Equal(t, "original", got.Content)

	page, err := svc.ListHistory(ctx, room7, 0, 50)
	require.NoError(t, err)
	require.Empty(t, page.Items)

	evs := pub.all()
	require.Len(t, evs, 2) // created + deleted, без edited
	require.Equal(t, domain.EventMessageDeleted, evs[1].ev.Type)
}

func TestSoftDelete_AbsorbingAndIdempotent(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room7, alice, "oops", domain.MessageText)
	require.NoError(t, err)

	require.NoError(t, env.svc.SoftDelete(ctx, room7, m.ID, alice))
	require.NoError(t, env.svc.SoftDelete(ctx, room7, m.ID, alice))

	_, err = env.svc.Edit(ctx, room7, m.ID, alice, "x")
	require.ErrorIs(t, err, domain.ErrMessageDeleted)
	require.ErrorIs(t, err, domain.ErrConflict)

	page, err := env.svc.ListHistory(ctx, room7, 0, 50)
	require.NoError(t, err)
	require.Empty(t, page.Items)

	// документ остаётся в хранилище
	got, err := env.messages.FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.Deleted)
	require.Equal(t, "oops", got.Content)

	evs := env.pub.all()
	require.Len(t, evs, 2) // created + один deleted
	require.Equal(t, "room/7/delete", evs[1].dest)
	require.Equal(t, domain.MessageDeletedData{ID: m.ID, RoomID: room7}, evs[1].ev.Data)
}

func TestEdit_CrossRoomIsNotFound(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, room8, alice, "in 8", domain.MessageText)
	require.NoError(t, err)

	_, err = env.svc.Edit(ctx, room7, m.ID, alice, "moved")
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
	require.ErrorIs(t, env.svc.SoftDelete(ctx, room7, m.ID, alice), domain.ErrMessageNotFound)

	_, err = env.svc.Edit(ctx, room7, "nope", alice, "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreFailure_NoBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	pub := mocks.NewMockPublisher(ctrl)
	members := newFakeMembers()
	members.add(room7, alice, domain.RoleMember)
	rooms := newFakeRooms(domain.Room{ID: room7, Kind: domain.RoomGroup, Active: true})

	svc := NewMessageService(store, rooms, NewAuthorizer(members), pub, MessageConfig{})

	boom := domain.StoreError("docstore.Save", errors.New("disk full"))
	var saved *domain.Message
	store.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m *domain.Message) error {
			saved = m
			return boom
		})
	// pub.Publish не ожидается: gomock упадёт при неожиданном вызове

	_, err := svc.Create(context.Background(), room7, alice, "hi", domain.MessageText)
	require.ErrorIs(t, err, domain.ErrStore)
	require.NotNil(t, saved)
	require.Equal(t, "hi", saved.Content)
	require.Equal(t, alice, saved.SenderID)

	store.EXPECT().Mutate(gomock.Any(), "m1", gomock.Any()).Return(nil, boom)
	_, err = svc.Edit(context.Background(), room7, "m1", alice, "x")
	require.ErrorIs(t, err, domain.ErrStore)
}

func TestListHistory_Clamps(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockMessageStore(ctrl)
	svc := NewMessageService(store, newFakeRooms(), NewAuthorizer(newFakeMembers()), &recordingPublisher{}, MessageConfig{})
	ctx := context.Background()

	store.EXPECT().PageByRoom(ctx, room7, 0, 50).Return(domain.Page{}, nil)
	store.EXPECT().PageByRoom(ctx, room7, 3, 100).Return(domain.Page{}, nil)
	store.EXPECT().PageByRoom(ctx, room7, 0, 50).Return(domain.Page{}, nil)

	// page*size не должен переполняться
	store.EXPECT().PageByRoom(ctx, room7, math.MaxInt/50-1, 50).Return(domain.Page{}, nil)
	store.EXPECT().PageByRoom(ctx, room7, math.MaxInt/100-1, 100).Return(domain.Page{}, nil)

	_, err := svc.ListHistory(ctx, room7, -1, 0)
	require.NoError(t, err)
	_, err = svc.ListHistory(ctx, room7, 3, 1000)
	require.NoError(t, err)
	_, err = svc.ListHistory(ctx, room7, 0, -5)
	require.NoError(t, err)
	_, err = svc.ListHistory(ctx, room7, math.MaxInt, 50)
	require.NoError(t, err)
	_, err = svc.ListHistory(ctx, room7, math.MaxInt/2, 1000)
	require.NoError(t, err)
}

func TestReadHistory_RequiresMembership(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	_, err := env.svc.ReadHistory(ctx, bob, room8, 0, 10)
	require.ErrorIs(t, err, domain.ErrNotMember)

	p, err := env.svc.ReadHistory(ctx, alice, room8, 0, 10)
	require.NoError(t, err)
	require.Equal(t, 10, p.Size)
}

func TestHistory_NewestFirst(t *testing.T) {
	env := newMsgEnv(t)
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		_, err := env.svc.Create(ctx, room7, alice, c, domain.MessageText)
		require.NoError(t, err)
	}
	page, err := env.svc.ListHistory(ctx, room7, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalElements)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, []string{"three", "two"}, []string{page.Items[0].Content, page.Items[1].Content})
}

func TestPostSystem(t *testing.T) {
	env := newMsgEnv(t)

	m, err := env.svc.PostSystem(context.Background(), room7, "user 2 was added by user 1")
	require.NoError(t, err)
	require.Equal(t, domain.SystemUserID, m.SenderID)
	require.Equal(t, domain.MessageSystem, m.Type)
	require.True(t, m.IsSystem())
	require.Len(t, env.pub.all(), 1)
}

func TestMonotonicClock(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newMonotonicClock(func() time.Time { return fixed })

	a := c.Now()
	b := c.Now()
	require.True(t, b.After(a))
	require.Equal(t, time.Nanosecond, b.Sub(a))
}
