package store

// Credential is the persisted bearer token of a profile. At most one row exists.
type Credential struct {
	Token     string
	Subject   string
	ExpiresAt int64 // unix seconds, 0 when the token carries no expiry
	UpdatedAt int64
}

// RecentRoom is a room the profile joined from this machine.
type RecentRoom struct {
	RoomID       string
	LastJoinedAt int64
	JoinCount    int
}
