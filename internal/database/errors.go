package database

import "errors"

var (
	// ErrNotFound is returned when a referenced user or channel does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrChannelExists is returned on channel creation when the name
	// is already taken.
	ErrChannelExists = errors.New("channel already exists")

	// ErrLastAdmin is returned by operations that would leave a
	// channel without any administrator.
	ErrLastAdmin = errors.New("channel would be left without admins")
)
