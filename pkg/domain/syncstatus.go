package domain

// SyncStatus tracks whether a local record still has to be pushed to the
// remote backend and in which form.
type SyncStatus string

// Sync statuses.
const (
	SyncPendingCreation SyncStatus = "pending_creation"
	SyncPendingUpdate   SyncStatus = "pending_update"
	SyncPendingDeletion SyncStatus = "pending_deletion"
	SyncSynced          SyncStatus = "synced"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPendingCreation, SyncPendingUpdate, SyncPendingDeletion, SyncSynced:
		return true
	}
	return false
}

// Visible reports whether records in this status are returned by local reads.
// Tombstones stay stored until the synchronizer confirms the deletion.
func (s SyncStatus) Visible() bool { return s != SyncPendingDeletion }

// AfterUpdate returns the status a record moves to when it is mutated locally.
// Only a synced record changes; pending records keep their pending state so a
// record created offline is still pushed as a creation.
func (s SyncStatus) AfterUpdate() SyncStatus {
	switch s {
	case SyncSynced:
		return SyncPendingUpdate
	case "":
		return SyncPendingCreation
	default:
		return s
	}
}

// DeleteMode describes how a local delete is carried out.
type DeleteMode int

// Delete modes.
const (
	// DeleteHard removes the record physically; the backend never saw it.
	DeleteHard DeleteMode = iota
	// DeleteTombstone keeps the record marked pending_deletion until synced.
	DeleteTombstone
)

// OnDelete returns the delete mode for a record in status s.
func (s SyncStatus) OnDelete() DeleteMode {
	if s == SyncPendingCreation || s == "" {
		return DeleteHard
	}
	return DeleteTombstone
}

// AfterSync returns the status a record takes once the synchronizer confirmed
// it. purge is true when the confirmed record is a tombstone and must be removed.
func (s SyncStatus) AfterSync() (next SyncStatus, purge bool) {
	if s == SyncPendingDeletion {
		return s, true
	}
	return SyncSynced, false
}

var syncTransitions = map[SyncStatus]map[SyncStatus]struct{}{
	"":                  {SyncPendingCreation: {}},
	SyncPendingCreation: {SyncSynced: {}},
	SyncPendingUpdate:   {SyncSynced: {}, SyncPendingDeletion: {}},
	SyncSynced:          {SyncPendingUpdate: {}, SyncPendingDeletion: {}},
	SyncPendingDeletion: {},
}

// CanTransition reports whether a stored record may move from one status to
// another within a single commit. Staying in the same status is always allowed.
func CanTransition(from, to SyncStatus) bool {
	if from == to {
		return true
	}
	allowed, ok := syncTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}
