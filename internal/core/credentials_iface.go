package core

import "context"

// GroupAccess is what the group channel needs to connect.
type GroupAccess struct {
	URL string `json:"url"`
	Hub string `json:"hub"`
}

type SpeechToken struct {
	Token  string `json:"token"`
	Region string `json:"region"`
}

// CredentialProvider issues the access material a call needs before it
// allocates anything else.
type CredentialProvider interface {
	GroupAccess(ctx context.Context) (GroupAccess, error)
	SpeechToken(ctx context.Context) (SpeechToken, error)
}
