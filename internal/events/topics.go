package events

import (
	"strings"
)

// Prefix is the root of every subject published by the server.
const Prefix = "storescan"

// Category names a family of records a client may watch within a scope.
type Category string

const (
	CategoryScannedCodes Category = "scanned_codes"
	CategoryOrders       Category = "orders"
	CategoryProducts     Category = "products"
	CategoryWishlist     Category = "wishlist"
)

// Categories lists every known category.
var Categories = []Category{CategoryScannedCodes, CategoryOrders, CategoryProducts, CategoryWishlist}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Actions
const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
	ActionCleared = "cleared"
)

// ScopeToken folds a store scope into a single NATS subject token:
// lowercase, with anything outside [a-z0-9_-] replaced by '_'. Distinct
// scopes may share a token; payloads carry the full scope so consumers can
// filter exactly.
func ScopeToken(scope string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(scope)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Topic returns the subject for an action on a category within a scope,
// e.g. "storescan.cherechiu.scanned_codes.created".
func Topic(scope string, category Category, action string) string {
	return Prefix + "." + ScopeToken(scope) + "." + string(category) + "." + action
}

// ScopePattern returns a wildcard subject matching every action of a
// category within a scope. An empty category matches all categories.
func ScopePattern(scope string, category Category) string {
	if category == "" {
		return Prefix + "." + ScopeToken(scope) + ".>"
	}
	return Prefix + "." + ScopeToken(scope) + "." + string(category) + ".>"
}

// ParseTopic splits a subject produced by Topic into its parts.
func ParseTopic(topic string) (scopeToken string, category Category, action string, ok bool) {
	parts := strings.Split(topic, ".")
	if len(parts) != 4 || parts[0] != Prefix {
		return "", "", "", false
	}
	return parts[1], Category(parts[2]), parts[3], true
}

// MatchSubject reports whether subject matches pattern under NATS wildcard
// rules: "*" stands for one token and a trailing ">" for one or more.
func MatchSubject(pattern, subject string) bool {
	pat := strings.Split(pattern, ".")
	sub := strings.Split(subject, ".")
	for i, tok := range pat {
		switch {
		case tok == ">" && i == len(pat)-1:
			return len(sub) > i
		case i >= len(sub):
			return false
		case tok != "*" && tok != sub[i]:
			return false
		}
	}
	return len(pat) == len(sub)
}
