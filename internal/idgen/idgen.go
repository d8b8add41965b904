// Package idgen generates short, URL-safe identifiers for stream sessions,
// watch clients, and server processes.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the kinds of identifiers calfeed hands out.
const (
	SessionPrefix = "ss-"
	ClientPrefix  = "cl-"
	OriginPrefix  = "nd-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// Session returns a new stream session ID.
func Session() (string, error) {
	return WithPrefix(SessionPrefix)
}

// Client returns a new watch client ID, sent as the stream's client parameter.
func Client() (string, error) {
	return WithPrefix(ClientPrefix)
}

// Origin returns a new server process ID, stamped on change announcements.
func Origin() (string, error) {
	return WithPrefix(OriginPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
