package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"example.com/socialfeed/internal/models"
)

var mockAccountCounter int

// MockStore simulates Cassandra operations for testing.
type MockStore struct {
	Accounts   map[string]models.Account // keyed by account id
	Sessions   map[string]string         // token id -> account id
	Posts      []models.Post
	Feed       map[string][]models.Post
	Followers  map[string][]string // followee id -> follower ids
	ShouldFail bool                // flag to simulate failures

	// SetUpdateCalls counts UpdateAccountSet invocations; when
	// FailSetUpdateOnCall matches the next call number, that call fails.
	// Used to exercise the best-effort cascade path.
	SetUpdateCalls      int
	FailSetUpdateOnCall int
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Accounts:  make(map[string]models.Account),
		Sessions:  make(map[string]string),
		Feed:      make(map[string][]models.Post),
		Followers: make(map[string][]string),
	}
}

func (m *MockStore) Close() {}

// CreateAccount simulates creating a new account
func (m *MockStore) CreateAccount(username, passwordHash string) (string, error) {
	if m.ShouldFail {
		return "", errors.New("mock: create account failed")
	}
	for _, acc := range m.Accounts {
		if acc.Username == username {
			return "", ErrUsernameTaken
		}
	}
	mockAccountCounter++
	id := fmt.Sprintf("account_%d", mockAccountCounter)
	m.Accounts[id] = models.Account{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		Created:      time.Now(),
	}
	return id, nil
}

func (m *MockStore) GetAccountByUsername(username string) (models.Account, error) {
	if m.ShouldFail {
		return models.Account{}, errors.New("mock: get account failed")
	}
	for _, acc := range m.Accounts {
		if acc.Username == username {
			return acc, nil
		}
	}
	return models.Account{}, ErrNotFound
}

func (m *MockStore) GetAccountByID(id string) (models.Account, error) {
	if m.ShouldFail {
		return models.Account{}, errors.New("mock: get account failed")
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return acc, nil
}

// UpdateAccountSet mirrors the Cassandra set semantics: adds are
// duplicate-free, removes of absent ids are no-ops.
func (m *MockStore) UpdateAccountSet(id string, field SetField, op SetOp, targetID string) error {
	if m.ShouldFail {
		return errors.New("mock: update set failed")
	}
	m.SetUpdateCalls++
	if m.FailSetUpdateOnCall == m.SetUpdateCalls {
		return errors.New("mock: update set failed")
	}

	acc, ok := m.Accounts[id]
	if !ok {
		return ErrNotFound
	}

	set := acc.Following
	if field == FieldBlocking {
		set = acc.Blocking
	}

	switch op {
	case SetAdd:
		if !slices.Contains(set, targetID) {
			set = append(set, targetID)
		}
	case SetRemove:
		set = slices.DeleteFunc(set, func(s string) bool { return s == targetID })
	}

	if field == FieldBlocking {
		acc.Blocking = set
	} else {
		acc.Following = set
		if op == SetAdd {
			if !slices.Contains(m.Followers[targetID], id) {
				m.Followers[targetID] = append(m.Followers[targetID], id)
			}
		} else {
			m.Followers[targetID] = slices.DeleteFunc(m.Followers[targetID], func(s string) bool { return s == id })
		}
	}
	m.Accounts[id] = acc
	return nil
}

func (m *MockStore) UpdatePasswordHash(id, passwordHash string) error {
	if m.ShouldFail {
		return errors.New("mock: update password failed")
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return ErrNotFound
	}
	acc.PasswordHash = passwordHash
	m.Accounts[id] = acc
	return nil
}

// --- Sessions ---

func (m *MockStore) CreateSession(tokenID, accountID string, ttl time.Duration) error {
	if m.ShouldFail {
		return errors.New("mock: create session failed")
	}
	m.Sessions[tokenID] = accountID
	return nil
}

func (m *MockStore) SessionExists(tokenID string) (bool, error) {
	if m.ShouldFail {
		return false, errors.New("mock: session lookup failed")
	}
	_, ok := m.Sessions[tokenID]
	return ok, nil
}

func (m *MockStore) DeleteSession(tokenID string) error {
	if m.ShouldFail {
		return errors.New("mock: delete session failed")
	}
	delete(m.Sessions, tokenID)
	return nil
}

// --- Posts & feeds ---

func (m *MockStore) AddPost(post models.Post) error {
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	m.Posts = append(m.Posts, post)
	return nil
}

func (m *MockStore) GetAllPosts(limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get posts failed")
	}
	if len(m.Posts) > limit {
		return slices.Clone(m.Posts[:limit]), nil
	}
	return slices.Clone(m.Posts), nil
}

func (m *MockStore) AddToFeed(userID string, post models.Post) error {
	if m.ShouldFail {
		return errors.New("mock: add to feed failed")
	}
	m.Feed[userID] = append(m.Feed[userID], post)
	return nil
}

func (m *MockStore) GetFeed(userID string, limit int) ([]models.Post, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get feed failed")
	}
	posts := m.Feed[userID]
	if len(posts) > limit {
		return posts[:limit], nil
	}
	return posts, nil
}

func (m *MockStore) GetFollowers(userID string) ([]string, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get followers failed")
	}
	return m.Followers[userID], nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateAccount(username, passwordHash string) (string, error) {
	return "", errors.New("mock store create account failed")
}

func (m *MockStoreFail) GetAccountByUsername(username string) (models.Account, error) {
	return models.Account{}, errors.New("mock store get account failed")
}

func (m *MockStoreFail) GetAccountByID(id string) (models.Account, error) {
	return models.Account{}, errors.New("mock store get account failed")
}

func (m *MockStoreFail) UpdateAccountSet(id string, field SetField, op SetOp, targetID string) error {
	return errors.New("mock store update set failed")
}

func (m *MockStoreFail) UpdatePasswordHash(id, passwordHash string) error {
	return errors.New("mock store update password failed")
}

func (m *MockStoreFail) CreateSession(tokenID, accountID string, ttl time.Duration) error {
	return errors.New("mock store create session failed")
}

func (m *MockStoreFail) SessionExists(tokenID string) (bool, error) {
	return false, errors.New("mock store session lookup failed")
}

func (m *MockStoreFail) DeleteSession(tokenID string) error {
	return errors.New("mock store delete session failed")
}

func (m *MockStoreFail) AddPost(post models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) GetAllPosts(limit int) ([]models.Post, error) {
	return nil, errors.New("mock store get posts failed")
}

func (m *MockStoreFail) AddToFeed(userID string, post models.Post) error {
	return errors.New("mock store add to feed failed")
}

func (m *MockStoreFail) GetFeed(userID string, limit int) ([]models.Post, error) {
	return nil, errors.New("mock store get feed failed")
}

func (m *MockStoreFail) GetFollowers(userID string) ([]string, error) {
	return nil, errors.New("mock store get followers failed")
}
