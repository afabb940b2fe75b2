package models

import "time"

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Following    []string  `json:"following"`
	Blocking     []string  `json:"blocking"`
	Created      time.Time `json:"created"`
}

// ViewerSummary is the session-scoped projection of an Account that the
// feed endpoints read. It is refreshed after every social-graph mutation.
type ViewerSummary struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Following []string `json:"following"`
	Blocking  []string `json:"blocking"`
}

// Summary projects the account into its viewer-facing form. The set
// fields are always defined for a loaded account: a viewer following
// nobody gets an empty set, not nil, since nil means "viewer not loaded"
// to feed composition.
func (a Account) Summary() ViewerSummary {
	s := ViewerSummary{
		ID:        a.ID,
		Username:  a.Username,
		Following: a.Following,
		Blocking:  a.Blocking,
	}
	if s.Following == nil {
		s.Following = []string{}
	}
	if s.Blocking == nil {
		s.Blocking = []string{}
	}
	return s
}

type Post struct {
	ID              string    `json:"id"`
	CreatorID       string    `json:"creator_id"`
	CreatorUsername string    `json:"creator_username"`
	Content         string    `json:"content"`
	Created         time.Time `json:"created"`
}

type Session struct {
	TokenID   string    `json:"token_id"`
	AccountID string    `json:"account_id"`
	Created   time.Time `json:"created"`
}
