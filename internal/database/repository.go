package database

// ChatRepository is the contract the messaging core requires from the
// persistence collaborator. Any compliant store satisfies it; the
// server never reaches past this interface.
type ChatRepository interface {
	Ping() error
	// ValidateUser resolves a user by external id; when googleId is
	// non-empty it must also match the stored provider id.
	ValidateUser(externalId, googleId string) (User, error)
	GetUserByEmail(email string) (User, error)
	// SetUserActive flips the presence flag; callers treat failures as
	// non-fatal.
	SetUserActive(userId int, active bool) error
	CreateChannel(params CreateChannelParams) (Channel, error)
	GetChannelByName(name string) (Channel, error)
	ListChannelsForUser(userId int) ([]Channel, error)
	AddMember(channelId, userId int) error
	RemoveMember(channelId, userId int) error
	AddAdmin(channelId, userId int) error
	RemoveAdmin(channelId, userId int) error
	LeaveChannel(userId, channelId int) error
	CreateMessage(msg Message) (int, error)
	// GetMessages returns the most recent limit messages for the
	// channel, ordered oldest to newest.
	GetMessages(channelId, limit int) ([]Message, error)
	// EnsureGeneralChannel creates the distinguished public "general"
	// channel if it does not exist yet and returns it.
	EnsureGeneralChannel() (Channel, error)
}
