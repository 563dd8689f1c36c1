package session

// Session is the server-side half of a browser login. The browser only
// holds ID in an HttpOnly cookie; RefreshToken never leaves the server.
type Session struct {
	ID           string
	UserID       string
	RefreshToken string
	CSRFToken    string

	CreatedAt int64
	ExpiresAt int64
}
