// Package domain holds the call's plain data types and the few pure rules
// over them.
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLen  = 36
	DefaultUsername = "guest"
)

var ErrUsernameTooLong = errors.New("username too long")

type UserID string

// User is the relay server's view of whoever holds an access token.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NormalizeUsername trims name; an empty result becomes DefaultUsername.
func NormalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUsername, nil
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
