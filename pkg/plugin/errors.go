package plugin

import "errors"

var (
	// ErrAlreadyRegistered is returned when a plugin name is registered twice.
	ErrAlreadyRegistered = errors.New("plugin already registered")

	// ErrNotRegistered is returned when emitting for an unknown plugin.
	ErrNotRegistered = errors.New("plugin not registered")

	// ErrNameRequired is returned when registering with an empty name.
	ErrNameRequired = errors.New("plugin name is required")

	// ErrBusClosed is returned on publish or subscribe after Close.
	ErrBusClosed = errors.New("event bus is closed")
)
