package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"grimm.is/halyard/internal/nm"
)

// BucketReplaceJournal holds snapshots of profiles being replaced.
const BucketReplaceJournal = "replace_journal"

// JournalEntry records a replace in flight: the profile's settings as they
// were before the old copy was deleted.
type JournalEntry struct {
	ID       string                `json:"id"`
	Identity string                `json:"identity"`
	UUID     string                `json:"uuid"`
	Snapshot nm.ConnectionSettings `json:"snapshot"`
	Started  time.Time             `json:"started"`
}

// ReplaceJournal provides typed access to the replace journal bucket.
// An entry exists from just before a profile is deleted until the replace
// either lands or is rolled back, so a crash in between leaves a record
// that can be restored on the next start.
type ReplaceJournal struct {
	store  Store
	bucket string
}

// NewReplaceJournal creates a journal accessor, creating the bucket if needed.
func NewReplaceJournal(store Store) (*ReplaceJournal, error) {
	if err := store.EnsureBucket(BucketReplaceJournal); err != nil {
		return nil, fmt.Errorf("failed to open replace journal: %w", err)
	}
	return &ReplaceJournal{store: store, bucket: BucketReplaceJournal}, nil
}

// Begin records a snapshot and returns the entry id.
func (j *ReplaceJournal) Begin(identity string, snapshot nm.ConnectionSettings) (string, error) {
	entry := JournalEntry{
		ID:       uuid.NewString(),
		Identity: identity,
		UUID:     nm.Properties(snapshot["connection"]).String("uuid"),
		Snapshot: snapshot,
		Started:  time.Now().UTC(),
	}
	if err := j.store.PutJSON(j.bucket, entry.ID, entry); err != nil {
		return "", fmt.Errorf("failed to journal replace of %s: %w", identity, err)
	}
	return entry.ID, nil
}

// Complete removes an entry once the replace has settled.
func (j *ReplaceJournal) Complete(id string) error {
	if err := j.store.Delete(j.bucket, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Pending returns unsettled entries, oldest first.
func (j *ReplaceJournal) Pending() ([]JournalEntry, error) {
	data, err := j.store.List(j.bucket)
	if err != nil {
		return nil, err
	}

	entries := make([]JournalEntry, 0, len(data))
	for key, raw := range data {
		var e JournalEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("corrupt journal entry %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b JournalEntry) int { return a.Started.Compare(b.Started) })
	return entries, nil
}
