package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hrygo/chatkit/plugin/chat/model"
)

// transferKey is the profile-scoped key holding pending transfers.
const transferKey = "chat.workspaceTransfer"

// TransferExpiry is how long a pushed transfer stays claimable. The
// window only needs to cover one workspace switch.
const TransferExpiry = 60 * time.Second

// TransferEntry is one session waiting to be picked up by another
// workspace.
type TransferEntry struct {
	ToWorkspace string          `json:"toWorkspace"`
	Timestamp   int64           `json:"timestamp"`
	Chat        *model.Snapshot `json:"chat"`
	InputValue  string          `json:"inputValue,omitempty"`
}

// TransferStore moves sessions between workspaces through the
// profile-scoped storage area.
type TransferStore struct {
	store *Store
	now   func() time.Time
}

func NewTransferStore(s *Store) *TransferStore {
	return &TransferStore{store: s, now: time.Now}
}

// Push records a session for pickup by the target workspace. Expired
// entries are pruned on the way.
func (t *TransferStore) Push(ctx context.Context, entry TransferEntry) error {
	entries := t.load(ctx)
	entries = t.pruneExpired(entries)
	entry.Timestamp = t.now().UnixMilli()
	entries = append(entries, entry)
	return t.save(ctx, entries)
}

// Take removes and returns the pending transfer addressed to the given
// workspace, if one exists and has not expired.
func (t *TransferStore) Take(ctx context.Context, workspace string) (*TransferEntry, bool, error) {
	entries := t.pruneExpired(t.load(ctx))

	var taken *TransferEntry
	remaining := entries[:0]
	for _, e := range entries {
		if taken == nil && e.ToWorkspace == workspace {
			claimed := e
			taken = &claimed
			continue
		}
		remaining = append(remaining, e)
	}

	if err := t.save(ctx, remaining); err != nil {
		return nil, false, err
	}
	return taken, taken != nil, nil
}

func (t *TransferStore) load(ctx context.Context) []TransferEntry {
	data, ok, err := t.store.Get(ctx, ScopeProfile, transferKey)
	if err != nil {
		slog.Error("failed to load workspace transfers", "error", err)
		return nil
	}
	if !ok || len(data) == 0 {
		return nil
	}

	var entries []TransferEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Error("malformed workspace transfers discarded", "error", err)
		return nil
	}
	return entries
}

func (t *TransferStore) save(ctx context.Context, entries []TransferEntry) error {
	if len(entries) == 0 {
		return t.store.Delete(ctx, ScopeProfile, transferKey)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, ScopeProfile, transferKey, data)
}

func (t *TransferStore) pruneExpired(entries []TransferEntry) []TransferEntry {
	cutoff := t.now().Add(-TransferExpiry).UnixMilli()
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp >= cutoff {
			kept = append(kept, e)
		}
	}
	return kept
}
