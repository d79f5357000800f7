package cascade

import (
	"context"
	"sort"

	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/domain/ports"
	"github.com/brianly1003/flocksync/internal/paths"
	"github.com/brianly1003/flocksync/internal/tree"
)

// UpdateSet maps paths, relative to a base path, to the value to write.
// A Tombstone value deletes the path.
type UpdateSet map[string]any

// Tombstone marks a path for deletion in an UpdateSet. Remotes read it as a
// nil write.
var Tombstone any

// Paths returns the paths of the set in ascending order.
func (u UpdateSet) Paths() []string {
	out := make([]string, 0, len(u))
	for p := range u {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Apply writes the set under base. Remotes that support multi-path updates
// receive one write; others get one write per path in Paths order.
func (u UpdateSet) Apply(ctx context.Context, remote ports.RemoteStore, base string) error {
	if len(u) == 0 {
		return nil
	}
	if m, ok := remote.(ports.MultiPathUpdater); ok {
		return m.Update(ctx, base, map[string]any(u))
	}
	for _, p := range u.Paths() {
		full := tree.Child(base, p)
		var err error
		if u[p] == Tombstone {
			err = remote.Remove(ctx, full)
		} else {
			err = remote.Set(ctx, full, u[p])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// BuildDeleteUpdates returns the userSettings writes that detach every member
// from flockID. members maps user IDs to their settings as read from the
// remote. A member whose selection is flockID loses the selection.
func BuildDeleteUpdates(members map[string]any, flockID string) (UpdateSet, error) {
	updates := make(UpdateSet, len(members)*2)
	for uid, raw := range members {
		var settings domain.UserSettings
		if err := domain.Decode(raw, &settings); err != nil {
			return nil, err
		}
		updates[paths.Join(uid, "flocks", flockID)] = Tombstone
		if settings.IsCurrent(flockID) {
			updates[paths.Join(uid, "currentFlockId")] = Tombstone
		}
	}
	return updates, nil
}

// UnlinkSettings returns settings without the membership of flockID. If the
// flock was selected, the selection moves to the lowest remaining membership
// or is cleared when none remains.
func UnlinkSettings(settings domain.UserSettings, flockID string) (out domain.UserSettings, wasCurrent bool) {
	out = settings.Clone()
	delete(out.Flocks, flockID)
	if !out.IsCurrent(flockID) {
		return out, false
	}
	out.CurrentFlockID = nil
	if remaining := out.Memberships(); len(remaining) > 0 {
		next := remaining[0]
		out.CurrentFlockID = &next
	}
	return out, true
}

// SelectFlock returns settings with flockID added as a membership and selected.
func SelectFlock(settings domain.UserSettings, flockID string) domain.UserSettings {
	out := settings.Clone()
	if out.Flocks == nil {
		out.Flocks = make(map[string]bool, 1)
	}
	out.Flocks[flockID] = true
	id := flockID
	out.CurrentFlockID = &id
	return out
}
