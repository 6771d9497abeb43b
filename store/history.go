package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/hrygo/chatkit/plugin/chat/model"
)

// sessionsKey is the workspace-scoped key holding serialized sessions.
const sessionsKey = "chat.sessions"

// MaxPersistedSessions bounds how many sessions Save keeps, most
// recently created first.
const MaxPersistedSessions = 25

// HistoryStore persists session snapshots for one workspace.
type HistoryStore struct {
	store *Store
}

func NewHistoryStore(s *Store) *HistoryStore {
	return &HistoryStore{store: s}
}

// Load returns the persisted snapshots. Missing or malformed data
// yields an empty history; malformed data is logged and discarded so a
// corrupt blob can never wedge startup.
func (h *HistoryStore) Load(ctx context.Context) []*model.Snapshot {
	data, ok, err := h.store.Get(ctx, ScopeWorkspace, sessionsKey)
	if err != nil {
		slog.Error("failed to load session history", "error", err)
		return nil
	}
	if !ok || len(data) == 0 {
		return nil
	}

	var snapshots []*model.Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		slog.Error("malformed session history discarded", "error", err)
		return nil
	}

	valid := snapshots[:0]
	for _, snap := range snapshots {
		if snap == nil || snap.SessionID == "" {
			slog.Warn("dropping session snapshot without id")
			continue
		}
		valid = append(valid, snap)
	}
	return valid
}

// Save persists the snapshots, newest first, truncated to
// MaxPersistedSessions.
func (h *HistoryStore) Save(ctx context.Context, snapshots []*model.Snapshot) error {
	sorted := make([]*model.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreationDate > sorted[j].CreationDate
	})
	if len(sorted) > MaxPersistedSessions {
		sorted = sorted[:MaxPersistedSessions]
	}

	data, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	return h.store.Set(ctx, ScopeWorkspace, sessionsKey, data)
}
