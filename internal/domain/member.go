package domain

// Member represents a connection's participation in a broadcast group.
// No transport or lifecycle logic here.
type Member struct {
	User         *User
	ConnectionID Identity
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, id Identity) *Member {
	return &Member{User: user, ConnectionID: id}
}
