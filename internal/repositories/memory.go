package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rtchat-service/internal/apperr"
	"rtchat-service/internal/models"
)

type pairKey struct{ low, high int64 }

type memoryRoom struct {
	room    models.Room
	members map[int64]struct{}
}

// MemoryStore implements RoomRepository and MessageRepository in process with the
// same uniqueness rules as the postgres schema. A single mutex makes every
// operation serializable.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	nextRoom int64
	nextMsg  int64
	rooms    map[int64]*memoryRoom
	bySlug   map[string]int64
	byName   map[string]int64
	byPair   map[pairKey]int64
	messages map[int64][]models.Message
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		rooms:    make(map[int64]*memoryRoom),
		bySlug:   make(map[string]int64),
		byName:   make(map[string]int64),
		byPair:   make(map[pairKey]int64),
		messages: make(map[int64][]models.Message),
	}
}

func (s *MemoryStore) insertLocked(room models.Room, members ...int64) models.Room {
	s.nextRoom++
	room.ID = s.nextRoom
	room.CreatedAt = s.now()
	mr := &memoryRoom{room: room, members: make(map[int64]struct{}, len(members))}
	for _, id := range members {
		mr.members[id] = struct{}{}
	}
	s.rooms[room.ID] = mr
	s.bySlug[room.Slug] = room.ID
	return mr.snapshot()
}

func (mr *memoryRoom) snapshot() models.Room {
	room := mr.room
	room.MemberIDs = make([]int64, 0, len(mr.members))
	for id := range mr.members {
		room.MemberIDs = append(room.MemberIDs, id)
	}
	sort.Slice(room.MemberIDs, func(i, j int) bool { return room.MemberIDs[i] < room.MemberIDs[j] })
	return room
}

func (s *MemoryStore) CreatePrivateRoom(_ context.Context, slug string, userA, userB int64) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, fmt.Errorf("%w: cannot create private room with self", apperr.ErrInvalidInput)
	}
	low, high := models.OrderedPair(userA, userB)

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byPair[pairKey{low, high}]; ok {
		return s.rooms[id].snapshot(), false, nil
	}
	if _, ok := s.bySlug[slug]; ok {
		return models.Room{}, false, apperr.ErrSlugTaken
	}
	room := s.insertLocked(models.Room{Slug: slug, IsPrivate: true}, low, high)
	s.byPair[pairKey{low, high}] = room.ID
	return room, true, nil
}

func (s *MemoryStore) CreateGroupRoom(_ context.Context, slug, displayName string, adminID int64) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[displayName]; ok {
		return models.Room{}, apperr.ErrDuplicateName
	}
	if _, ok := s.bySlug[slug]; ok {
		return models.Room{}, apperr.ErrSlugTaken
	}
	name, admin := displayName, adminID
	room := s.insertLocked(models.Room{Slug: slug, DisplayName: &name, AdminID: &admin}, adminID)
	s.byName[displayName] = room.ID
	return room, nil
}

func (s *MemoryStore) FindPrivateRoom(_ context.Context, userA, userB int64) (models.Room, error) {
	low, high := models.OrderedPair(userA, userB)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPair[pairKey{low, high}]
	if !ok {
		return models.Room{}, fmt.Errorf("%w: private room", apperr.ErrNotFound)
	}
	return s.rooms[id].snapshot(), nil
}

func (s *MemoryStore) GetRoomBySlug(_ context.Context, slug string) (models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return models.Room{}, fmt.Errorf("%w: room %q", apperr.ErrNotFound, slug)
	}
	return s.rooms[id].snapshot(), nil
}

func (s *MemoryStore) RenameGroupRoom(_ context.Context, roomID int64, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.rooms[roomID]
	if !ok || mr.room.IsPrivate {
		return fmt.Errorf("%w: room", apperr.ErrNotFound)
	}
	if owner, taken := s.byName[displayName]; taken && owner != roomID {
		return apperr.ErrDuplicateName
	}
	delete(s.byName, mr.room.Name())
	name := displayName
	mr.room.DisplayName = &name
	s.byName[displayName] = roomID
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, roomID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: room", apperr.ErrNotFound)
	}
	mr.members[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	if _, member := mr.members[userID]; !member {
		return false, nil
	}
	delete(mr.members, userID)
	return true, nil
}

func (s *MemoryStore) IsMember(_ context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	_, member := mr.members[userID]
	return member, nil
}

func (s *MemoryStore) ListRoomsForUser(_ context.Context, userID int64) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := []models.Room{}
	for _, mr := range s.rooms {
		if _, ok := mr.members[userID]; ok {
			rooms = append(rooms, mr.snapshot())
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID > rooms[j].ID })
	return rooms, nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: room", apperr.ErrNotFound)
	}
	delete(s.bySlug, mr.room.Slug)
	if mr.room.DisplayName != nil {
		delete(s.byName, *mr.room.DisplayName)
	}
	if mr.room.IsPrivate {
		for key, id := range s.byPair {
			if id == roomID {
				delete(s.byPair, key)
			}
		}
	}
	delete(s.messages, roomID)
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, roomID, authorID int64, body string, createdAt time.Time) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return models.Message{}, fmt.Errorf("%w: room", apperr.ErrNotFound)
	}
	s.nextMsg++
	msg := models.Message{ID: s.nextMsg, RoomID: roomID, AuthorID: authorID, Body: body, CreatedAt: createdAt}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return msg, nil
}

func (s *MemoryStore) ListRecent(_ context.Context, roomID int64, limit int) ([]models.Message, error) {
	s.mu.Lock()
	all := append([]models.Message(nil), s.messages[roomID]...)
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[j].Before(all[i]) })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []models.Message{}
	}
	return all, nil
}

var (
	_ RoomRepository    = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
	_ RoomRepository    = (*RoomRepo)(nil)
	_ MessageRepository = (*MessageRepo)(nil)
)
