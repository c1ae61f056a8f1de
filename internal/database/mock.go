package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) ValidateUser(externalId, googleId string) (User, error) {
	args := m.Called(externalId, googleId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) SetUserActive(userId int, active bool) error {
	args := m.Called(userId, active)
	return args.Error(0)
}
func (m *MockChatRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockChatRepository) GetChannelByName(name string) (Channel, error) {
	args := m.Called(name)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockChatRepository) ListChannelsForUser(userId int) ([]Channel, error) {
	args := m.Called(userId)
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockChatRepository) AddMember(channelId, userId int) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) RemoveMember(channelId, userId int) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) AddAdmin(channelId, userId int) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) RemoveAdmin(channelId, userId int) error {
	args := m.Called(channelId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) LeaveChannel(userId, channelId int) error {
	args := m.Called(userId, channelId)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMessage(msg Message) (int, error) {
	args := m.Called(msg)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) GetMessages(channelId, limit int) ([]Message, error) {
	args := m.Called(channelId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) EnsureGeneralChannel() (Channel, error) {
	args := m.Called()
	return args.Get(0).(Channel), args.Error(1)
}
