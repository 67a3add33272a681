package service

import (
	"context"
	"sort"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type memberKey struct {
	room domain.RoomID
	user domain.UserID
}

type fakeMembers struct {
	mu   sync.Mutex
	rows map[memberKey]domain.Role
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{rows: map[memberKey]domain.Role{}}
}

func (f *fakeMembers) add(room domain.RoomID, user domain.UserID, role domain.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[memberKey{room, user}] = role
}

func (f *fakeMembers) IsMember(_ context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[memberKey{roomID, userID}]
	return ok, nil
}

func (f *fakeMembers) HasRole(_ context.Context, roomID domain.RoomID, userID domain.UserID, role domain.Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[memberKey{roomID, userID}]
	return ok && r == role, nil
}

func (f *fakeMembers) ListMembers(_ context.Context, roomID domain.RoomID) ([]domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Membership
	for k, r := range f.rows {
		if k.room == roomID {
			out = append(out, domain.Membership{RoomID: k.room, UserID: k.user, Role: r})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeMembers) AddMember(_ context.Context, m domain.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := memberKey{m.RoomID, m.UserID}
	if _, ok := f.rows[k]; ok {
		return domain.ErrAlreadyJoined
	}
	f.rows[k] = m.Role
	return nil
}

func (f *fakeMembers) RemoveMember(_ context.Context, roomID domain.RoomID, userID domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := memberKey{roomID, userID}
	if _, ok := f.rows[k]; !ok {
		return domain.ErrNotInRoom
	}
	delete(f.rows, k)
	return nil
}

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*domain.Room
}

func newFakeRooms(rooms ...domain.Room) *fakeRooms {
	f := &fakeRooms{rooms: map[domain.RoomID]*domain.Room{}}
	for i := range rooms {
		r := rooms[i]
		f.rooms[r.ID] = &r
	}
	return f
}

func (f *fakeRooms) Create(context.Context, *domain.Room, []domain.Membership) error { return nil }
func (f *fakeRooms) FindDirect(context.Context, domain.UserID, domain.UserID) (*domain.Room, error) {
	return nil, domain.ErrRoomNotFound
}

func (f *fakeRooms) Get(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRooms) Deactivate(_ context.Context, id domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rooms[id]; ok {
		r.Active = false
	}
	return nil
}

// fakeMessages — хранилище в памяти с той же семантикой, что docstore.
type fakeMessages struct {
	mu   sync.Mutex
	docs map[string]domain.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{docs: map[string]domain.Message{}}
}

func (f *fakeMessages) Save(_ context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[m.ID] = *m
	return nil
}

func (f *fakeMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return &m, nil
}

func (f *fakeMessages) Mutate(_ context.Context, id string, fn func(*domain.Message) (bool, error)) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	changed, err := fn(&m)
	if err != nil {
		return nil, err
	}
	if changed {
		f.docs[id] = m
	}
	return &m, nil
}

func (f *fakeMessages) PageByRoom(_ context.Context, roomID domain.RoomID, page, size int) (domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var live []domain.Message
	for _, m := range f.docs {
		if m.RoomID == roomID && !m.Deleted {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })

	p := domain.Page{Page: page, Size: size, TotalElements: len(live), Items: []domain.Message{}}
	p.TotalPages = (len(live) + size - 1) / size
	from := page * size
	if from < len(live) {
		to := min(from+size, len(live))
		p.Items = append(p.Items, live[from:to]...)
	}
	return p, nil
}

type published struct {
	dest string
	ev   domain.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(dest string, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{dest, ev})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}
