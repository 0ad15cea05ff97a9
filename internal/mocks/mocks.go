package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"rtchat-service/internal/models"
	"rtchat-service/internal/repositories"
)

var (
	_ repositories.RoomRepository    = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)

type RoomRepositoryMock struct {
	mock.Mock
}

func room(args mock.Arguments, i int) models.Room {
	var r models.Room
	if val := args.Get(i); val != nil {
		r = val.(models.Room)
	}
	return r
}

func (m *RoomRepositoryMock) CreatePrivateRoom(ctx context.Context, slug string, userA, userB int64) (models.Room, bool, error) {
	args := m.Called(ctx, slug, userA, userB)
	return room(args, 0), args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) CreateGroupRoom(ctx context.Context, slug, displayName string, adminID int64) (models.Room, error) {
	args := m.Called(ctx, slug, displayName, adminID)
	return room(args, 0), args.Error(1)
}

func (m *RoomRepositoryMock) FindPrivateRoom(ctx context.Context, userA, userB int64) (models.Room, error) {
	args := m.Called(ctx, userA, userB)
	return room(args, 0), args.Error(1)
}

func (m *RoomRepositoryMock) GetRoomBySlug(ctx context.Context, slug string) (models.Room, error) {
	args := m.Called(ctx, slug)
	return room(args, 0), args.Error(1)
}

func (m *RoomRepositoryMock) RenameGroupRoom(ctx context.Context, roomID int64, displayName string) error {
	args := m.Called(ctx, roomID, displayName)
	return args.Error(0)
}

func (m *RoomRepositoryMock) AddMember(ctx context.Context, roomID, userID int64) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) RemoveMember(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int64) ([]models.Room, error) {
	args := m.Called(ctx, userID)
	var list []models.Room
	if val := args.Get(0); val != nil {
		list = val.([]models.Room)
	}
	return list, args.Error(1)
}

func (m *RoomRepositoryMock) DeleteRoom(ctx context.Context, roomID int64) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID, authorID int64, body string, createdAt time.Time) (models.Message, error) {
	args := m.Called(ctx, roomID, authorID, body, createdAt)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, roomID int64, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

type IdentityMock struct {
	mock.Mock
}

func (m *IdentityMock) Authenticate(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *IdentityMock) IsEmailVerified(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *IdentityMock) ResolveUsername(ctx context.Context, username string) (int64, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.Error(1)
}
