// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// CodePrefix marks server-issued scanned code IDs.
	CodePrefix = "sc-"
	// TentativePrefix marks IDs synthesized by a client before the
	// durable write is confirmed.
	TentativePrefix = "tmp-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// Generate returns a new server ID for a scanned code.
func Generate() (string, error) {
	return GenerateWithPrefix(CodePrefix)
}

// Tentative returns a new locally unique temporary ID.
func Tentative() (string, error) {
	return GenerateWithPrefix(TentativePrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// IsTentative reports whether id was produced by Tentative.
func IsTentative(id string) bool {
	return strings.HasPrefix(id, TentativePrefix)
}
