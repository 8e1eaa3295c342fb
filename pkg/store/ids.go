package store

import "github.com/google/uuid"

// NewMessageID mints a time-ordered message id: UUIDv7's leading 48 bits are
// milliseconds since epoch, the remainder random, so lexicographic string
// comparison matches chronological order. This is load-bearing for history
// pagination and visibility borders — never substitute uuid.New() (v4) here.
func NewMessageID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewID mints a random (non-ordered) identifier for entities that don't
// need chronological comparison: users, chats.
func NewID() string {
	return uuid.New().String()
}
