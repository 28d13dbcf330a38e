package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/state"
)

// BackendCheck reports unhealthy when the network manager cannot list
// devices.
func BackendCheck(client *nm.Client) CheckFunc {
	return func(ctx context.Context) Check {
		devices, err := client.Devices(ctx)
		if err != nil {
			status := StatusDegraded
			if errors.Is(err, nm.ErrUnavailable) {
				status = StatusUnhealthy
			}
			return Check{Status: status, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d devices", len(devices))}
	}
}

// JournalCheck reports degraded when replace snapshots are waiting for
// recovery or the journal cannot be read.
func JournalCheck(journal *state.ReplaceJournal) CheckFunc {
	return func(ctx context.Context) Check {
		pending, err := journal.Pending()
		switch {
		case err != nil:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("journal unreadable: %v", err)}
		case len(pending) > 0:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%d replace snapshots pending recovery", len(pending))}
		}
		return Check{Status: StatusHealthy, Message: "no pending replaces"}
	}
}

// Snapshotter exposes when a cached snapshot was taken.
type Snapshotter interface {
	Taken() time.Time
}

// SnapshotCheck reports degraded when the snapshot is older than maxAge.
func SnapshotCheck(s Snapshotter, maxAge time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		taken := s.Taken()
		if taken.IsZero() {
			return Check{Status: StatusDegraded, Message: "no snapshot taken yet"}
		}
		age := time.Since(taken).Truncate(time.Millisecond)
		if age > maxAge {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("snapshot is %s old", age)}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("snapshot is %s old", age)}
	}
}
