package social

import (
	"errors"

	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
)

var logg = logger.New()

// ErrSelfTarget rejects follow/block requests aimed at the acting account.
var ErrSelfTarget = errors.New("cannot target yourself")

// Mutator applies social-graph changes to the store. Every successful
// mutation returns the acting account's refreshed summary so callers
// always recompose feeds from post-mutation state.
type Mutator struct {
	store store.StoreInterface
}

func New(st store.StoreInterface) *Mutator {
	return &Mutator{store: st}
}

// Follow adds target to the actor's following set. Following an already
// followed account is a no-op, not an error.
func (m *Mutator) Follow(actorID, targetID string) (models.ViewerSummary, error) {
	if actorID == targetID {
		return models.ViewerSummary{}, ErrSelfTarget
	}

	if err := m.store.UpdateAccountSet(actorID, store.FieldFollowing, store.SetAdd, targetID); err != nil {
		return models.ViewerSummary{}, err
	}

	return m.refresh(actorID)
}

// Unfollow removes target from the actor's following set, idempotently.
func (m *Mutator) Unfollow(actorID, targetID string) (models.ViewerSummary, error) {
	if err := m.store.UpdateAccountSet(actorID, store.FieldFollowing, store.SetRemove, targetID); err != nil {
		return models.ViewerSummary{}, err
	}

	return m.refresh(actorID)
}

// Block adds target to the actor's blocking set and cascades an unfollow.
// The cascade is best-effort: if the second write fails the block still
// stands, and the blocked-and-still-followed state is logged for later
// reconciliation rather than retried or rolled back.
func (m *Mutator) Block(actorID, targetID string) (models.ViewerSummary, error) {
	if actorID == targetID {
		return models.ViewerSummary{}, ErrSelfTarget
	}

	if err := m.store.UpdateAccountSet(actorID, store.FieldBlocking, store.SetAdd, targetID); err != nil {
		return models.ViewerSummary{}, err
	}

	if err := m.store.UpdateAccountSet(actorID, store.FieldFollowing, store.SetRemove, targetID); err != nil {
		logg.Error("social", "Cascade unfollow failed after block; account left blocked and followed (ids anonymized)", err)
	}

	return m.refresh(actorID)
}

// Unblock removes target from the actor's blocking set. It never restores
// a follow relationship removed by an earlier block.
func (m *Mutator) Unblock(actorID, targetID string) (models.ViewerSummary, error) {
	if err := m.store.UpdateAccountSet(actorID, store.FieldBlocking, store.SetRemove, targetID); err != nil {
		return models.ViewerSummary{}, err
	}

	return m.refresh(actorID)
}

func (m *Mutator) refresh(actorID string) (models.ViewerSummary, error) {
	acc, err := m.store.GetAccountByID(actorID)
	if err != nil {
		return models.ViewerSummary{}, err
	}
	return acc.Summary(), nil
}
