package store

import (
	"fmt"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// --- Account operations ---

// GetAccountByUsername loads the full account for a username.
// Returns ErrNotFound if the username is unknown.
func (s *Store) GetAccountByUsername(username string) (models.Account, error) {
	var id string
	err := s.Session.Query(
		`SELECT account_id FROM accounts_by_username WHERE username = ?`,
		username,
	).Scan(&id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Account{}, ErrNotFound
		}
		logg.Error("store", "Failed to query account by username", err)
		return models.Account{}, err
	}
	return s.GetAccountByID(id)
}

// GetAccountByID loads the full account row, including the following and
// blocking sets.
func (s *Store) GetAccountByID(id string) (models.Account, error) {
	var acc models.Account
	err := s.Session.Query(`
		SELECT account_id, username, password_hash, following, blocking, created_at
		FROM accounts WHERE account_id = ?`,
		id,
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.Following, &acc.Blocking, &acc.Created)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Account{}, ErrNotFound
		}
		logg.Error("store", "Failed to query account by id", err)
		return models.Account{}, err
	}
	return acc, nil
}

// CreateAccount creates a new account with the given bcrypt hash.
// Username uniqueness is enforced with a CAS insert; a losing race or an
// existing name returns ErrUsernameTaken.
func (s *Store) CreateAccount(username, passwordHash string) (string, error) {
	id := uuid.NewString()

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO accounts_by_username (username, account_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username entry", err)
		return "", err
	}

	if !applied {
		return "", ErrUsernameTaken
	}

	err = s.Session.Query(`
		INSERT INTO accounts (account_id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		id, username, passwordHash, time.Now(),
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to create account in main table", err)
		return "", err
	}

	logg.Info("store", "Account created successfully (username anonymized)")
	return id, nil
}

// UpdateAccountSet atomically adds or removes a target id on an account's
// following or blocking set. A following change also maintains the
// followers_by_followee reverse index in the same logged batch so the
// fan-out worker sees a consistent graph.
func (s *Store) UpdateAccountSet(id string, field SetField, op SetOp, targetID string) error {
	var sign string
	switch op {
	case SetAdd:
		sign = "+"
	case SetRemove:
		sign = "-"
	default:
		return fmt.Errorf("unknown set op: %s", op)
	}

	stmt := fmt.Sprintf(
		`UPDATE accounts SET %s = %s %s ? WHERE account_id = ?`,
		field, field, sign,
	)

	if field != FieldFollowing {
		if err := s.Session.Query(stmt, []string{targetID}, id).Exec(); err != nil {
			logg.Error("store", "Failed to update account set", err)
			return err
		}
		logg.Info("store", "Account set updated (ids anonymized)")
		return nil
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(stmt, []string{targetID}, id)
	if op == SetAdd {
		batch.Query(`INSERT INTO followers_by_followee (followee_id, follower_id) VALUES (?, ?)`, targetID, id)
	} else {
		batch.Query(`DELETE FROM followers_by_followee WHERE followee_id = ? AND follower_id = ?`, targetID, id)
	}

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to update following set", err)
		return err
	}

	logg.Info("store", "Following set updated (ids anonymized)")
	return nil
}

// UpdatePasswordHash replaces the stored password hash for an account.
func (s *Store) UpdatePasswordHash(id, passwordHash string) error {
	if err := s.Session.Query(
		`UPDATE accounts SET password_hash = ? WHERE account_id = ?`,
		passwordHash, id,
	).Exec(); err != nil {
		logg.Error("store", "Failed to update password hash", err)
		return err
	}
	logg.Info("store", "Password hash updated (account id anonymized)")
	return nil
}

// --- Session operations ---

// CreateSession records an active session token. The row expires with the
// configured TTL so abandoned sessions age out without cleanup jobs.
func (s *Store) CreateSession(tokenID, accountID string, ttl time.Duration) error {
	if err := s.Session.Query(
		`INSERT INTO sessions (token_id, account_id, created_at) VALUES (?, ?, ?) USING TTL ?`,
		tokenID, accountID, time.Now(), int(ttl.Seconds()),
	).Exec(); err != nil {
		logg.Error("store", "Failed to create session", err)
		return err
	}
	return nil
}

// SessionExists reports whether a session token is still live.
func (s *Store) SessionExists(tokenID string) (bool, error) {
	var accountID string
	err := s.Session.Query(
		`SELECT account_id FROM sessions WHERE token_id = ?`,
		tokenID,
	).Scan(&accountID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		logg.Error("store", "Failed to query session", err)
		return false, err
	}
	return true, nil
}

// DeleteSession revokes a session token.
func (s *Store) DeleteSession(tokenID string) error {
	if err := s.Session.Query(
		`DELETE FROM sessions WHERE token_id = ?`,
		tokenID,
	).Exec(); err != nil {
		logg.Error("store", "Failed to delete session", err)
		return err
	}
	logg.Info("store", "Session destroyed (session id anonymized)")
	return nil
}

// --- Follower index ---

// GetFollowers returns the ids of accounts following the given account.
func (s *Store) GetFollowers(userID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT follower_id FROM followers_by_followee WHERE followee_id = ?`,
		userID,
	).Iter()

	var id string
	var res []string
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, err
	}

	return res, nil
}
