// Package idgen provides short, URL-safe unique IDs backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EventPrefix is prepended to change-event IDs.
const EventPrefix = "ev-"

// Alphabet defines the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters in an event ID.
var Length = 12

// TokenLength is the number of random characters in a lock token.
var TokenLength = 21

// NewEventID returns an ID for a published change event.
func NewEventID() (string, error) {
	return WithPrefix(EventPrefix, Length)
}

// NewToken returns a random owner token for a distributed lock.
func NewToken() (string, error) {
	return WithPrefix("", TokenLength)
}

// WithPrefix returns prefix followed by n random characters from Alphabet.
func WithPrefix(prefix string, n int) (string, error) {
	id, err := nanoid.Generate(Alphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
