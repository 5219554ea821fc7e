// Package cardview keeps a session-local copy of a project's cards so a
// delete can be shown immediately and undone if the server refuses it.
package cardview

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/lastline-erp/lastline-backend/internal/productioncards"
)

// Deleter persists a card deletion.
type Deleter interface {
	Delete(ctx context.Context, id uuid.UUID, operator string) error
}

// View is an ordered, concurrency-safe card collection.
type View struct {
	mu      sync.RWMutex
	cards   []productioncards.Card
	deleter Deleter
}

// New builds a view over cards, in the order given.
func New(cards []productioncards.Card, deleter Deleter) *View {
	out := make([]productioncards.Card, len(cards))
	copy(out, cards)
	return &View{cards: out, deleter: deleter}
}

// Cards returns a copy of the current collection.
func (v *View) Cards() []productioncards.Card {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]productioncards.Card, len(v.cards))
	copy(out, v.cards)
	return out
}

// Replace swaps in a freshly loaded collection.
func (v *View) Replace(cards []productioncards.Card) {
	out := make([]productioncards.Card, len(cards))
	copy(out, cards)
	v.mu.Lock()
	v.cards = out
	v.mu.Unlock()
}

// Delete removes the card locally, then persists. On failure the collection
// is restored to the snapshot taken before the removal and the deleter's
// error is returned unchanged.
func (v *View) Delete(ctx context.Context, id uuid.UUID, operator string) error {
	v.mu.Lock()
	snapshot := make([]productioncards.Card, len(v.cards))
	copy(snapshot, v.cards)
	idx := indexOf(v.cards, id)
	if idx < 0 {
		v.mu.Unlock()
		return fmt.Errorf("card %s is not in view", id)
	}
	v.cards = append(v.cards[:idx:idx], v.cards[idx+1:]...)
	v.mu.Unlock()

	if err := v.deleter.Delete(ctx, id, operator); err != nil {
		v.mu.Lock()
		v.cards = snapshot
		v.mu.Unlock()
		return err
	}
	return nil
}

// DeleteAll deletes each card independently; failures are restored one by
// one and returned combined.
func (v *View) DeleteAll(ctx context.Context, ids []uuid.UUID, operator string) error {
	var errs error
	for _, id := range ids {
		if err := v.deleteRestoringInPlace(ctx, id, operator); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete card %s: %w", id, err))
		}
	}
	return errs
}

// deleteRestoringInPlace is Delete for batches: a failed card goes back at
// its old position without discarding removals that succeeded meanwhile.
func (v *View) deleteRestoringInPlace(ctx context.Context, id uuid.UUID, operator string) error {
	v.mu.Lock()
	idx := indexOf(v.cards, id)
	if idx < 0 {
		v.mu.Unlock()
		return fmt.Errorf("card %s is not in view", id)
	}
	removed := v.cards[idx]
	v.cards = append(v.cards[:idx:idx], v.cards[idx+1:]...)
	v.mu.Unlock()

	if err := v.deleter.Delete(ctx, id, operator); err != nil {
		v.mu.Lock()
		at := idx
		if at > len(v.cards) {
			at = len(v.cards)
		}
		restored := make([]productioncards.Card, 0, len(v.cards)+1)
		restored = append(restored, v.cards[:at]...)
		restored = append(restored, removed)
		v.cards = append(restored, v.cards[at:]...)
		v.mu.Unlock()
		return err
	}
	return nil
}

func indexOf(cards []productioncards.Card, id uuid.UUID) int {
	for i, card := range cards {
		if card.ID == id {
			return i
		}
	}
	return -1
}
