package model

import (
	"strings"
	"time"
)

// Contact is a saved recipient. Alias is the lookup key, stored lowercase.
// Token is the default token symbol used when paying the contact without
// an explicit token.
type Contact struct {
	Alias   string    `db:"alias"`
	Name    string    `db:"name"`
	Address string    `db:"address"`
	Token   string    `db:"token"`
	AddedAt time.Time `db:"added_at"`
}

// NormalizeAlias canonicalizes an alias for storage and lookup.
func NormalizeAlias(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
