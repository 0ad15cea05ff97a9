package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"rtchat-service/internal/models"
)

type RoomServiceMock struct {
	mock.Mock
}

func (m *RoomServiceMock) CreatePrivateRoomByUsername(ctx context.Context, userID int64, otherUsername string) (models.Room, error) {
	args := m.Called(ctx, userID, otherUsername)
	return room(args, 0), args.Error(1)
}

func (m *RoomServiceMock) CreateGroupRoom(ctx context.Context, adminID int64, displayName string) (models.Room, error) {
	args := m.Called(ctx, adminID, displayName)
	return room(args, 0), args.Error(1)
}

func (m *RoomServiceMock) ViewRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	args := m.Called(ctx, userID, slug)
	return room(args, 0), args.Error(1)
}

func (m *RoomServiceMock) JoinGroupRoom(ctx context.Context, userID int64, slug string) (models.Room, error) {
	args := m.Called(ctx, userID, slug)
	return room(args, 0), args.Error(1)
}

func (m *RoomServiceMock) RemoveMember(ctx context.Context, adminID int64, slug string, memberID int64) error {
	args := m.Called(ctx, adminID, slug, memberID)
	return args.Error(0)
}

func (m *RoomServiceMock) LeaveRoom(ctx context.Context, userID int64, slug string) error {
	args := m.Called(ctx, userID, slug)
	return args.Error(0)
}

func (m *RoomServiceMock) DeleteRoom(ctx context.Context, adminID int64, slug string) error {
	args := m.Called(ctx, adminID, slug)
	return args.Error(0)
}

func (m *RoomServiceMock) RenameGroupRoom(ctx context.Context, adminID int64, slug, displayName string) (models.Room, error) {
	args := m.Called(ctx, adminID, slug, displayName)
	return room(args, 0), args.Error(1)
}

func (m *RoomServiceMock) ListRooms(ctx context.Context, userID int64) (models.RoomListing, error) {
	args := m.Called(ctx, userID)
	var listing models.RoomListing
	if val := args.Get(0); val != nil {
		listing = val.(models.RoomListing)
	}
	return listing, args.Error(1)
}

func (m *RoomServiceMock) OnlineUsers(ctx context.Context, userID int64, slug string) ([]int64, error) {
	args := m.Called(ctx, userID, slug)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Append(ctx context.Context, userID int64, slug, body string) (models.Message, error) {
	args := m.Called(ctx, userID, slug, body)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) Recent(ctx context.Context, userID int64, slug string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userID, slug, limit)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}
