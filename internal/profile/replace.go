package profile

import (
	"context"
	"fmt"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/settings"
)

// ReplaceError reports a replace whose add step failed after the original
// profile had been removed. Restored is true when the original profile was
// added back successfully.
type ReplaceError struct {
	Identity string
	Cause    error
	Restored bool
}

func (e *ReplaceError) Error() string {
	if e.Restored {
		return fmt.Sprintf("replace %s: %v; original profile restored", e.Identity, e.Cause)
	}
	return fmt.Sprintf("replace %s: %v", e.Identity, e.Cause)
}

func (e *ReplaceError) Unwrap() error { return e.Cause }

// WasRestored reports whether the original profile was added back.
func (e *ReplaceError) WasRestored() bool { return e.Restored }

// Replace swaps the stored settings of identity for doc. An identity that
// does not resolve creates a new profile.
func (m *Manager) Replace(ctx context.Context, identity string, doc settings.Document) (_ Profile, err error) {
	defer func() { m.metrics.RecordProfileOp(OpReplace, err) }()

	// The delete/add/restore sequence must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	cs, err := m.parse(OpReplace, identity, doc)
	if err != nil {
		return Profile{}, err
	}
	profiles, err := m.all(ctx, OpReplace, identity)
	if err != nil {
		return Profile{}, err
	}

	old, found := find(profiles, identity)
	if !found {
		return m.create(ctx, OpReplace, profiles, cs)
	}
	if m.IsReserved(old.identity) {
		return Profile{}, fault.New(fault.Reserved, OpReplace, identity, "profile is reserved")
	}

	id := settings.IdentityOf(cs)
	if err := checkDocumentIdentity(OpReplace, profiles, id); err != nil {
		return Profile{}, err
	}
	if id.UUID != "" && id.UUID != old.identity.UUID {
		var errs settings.ValidationErrors
		errs.Add("connection.uuid", "cannot be changed (profile uuid is %s)", old.identity.UUID)
		return Profile{}, fault.Wrap(fault.Validation, OpReplace, identity, errs)
	}
	if _, ok := cs[settings.GroupConnection]; !ok {
		cs[settings.GroupConnection] = map[string]nm.Variant{}
	}
	if id.ID == "" {
		cs[settings.GroupConnection]["id"] = nm.String(old.identity.ID)
	}
	cs[settings.GroupConnection]["uuid"] = nm.String(old.identity.UUID)

	snapshot, err := m.fullSettings(ctx, OpReplace, identity, old.path)
	if err != nil {
		return Profile{}, err
	}
	carrySecrets(cs, snapshot)
	carryReadOnly(cs, snapshot)

	id, err = m.prepareNew(OpReplace, cs)
	if err != nil {
		return Profile{}, err
	}
	if err := checkUnique(OpReplace, profiles, id, old.path); err != nil {
		return Profile{}, err
	}

	return m.swap(ctx, identity, old.path, snapshot, cs, id)
}

// carrySecrets copies secrets the new settings leave unset from the old
// profile, so omitting a secret on write keeps it.
func carrySecrets(cs, old nm.ConnectionSettings) {
	for _, group := range nm.SecretGroups() {
		props, ok := cs[group]
		if !ok {
			continue
		}
		for key, v := range old[group] {
			if !nm.IsSecret(group, key) {
				continue
			}
			if _, set := props[key]; !set {
				props[key] = v.Clone()
			}
		}
	}
}

// carryReadOnly keeps the groups the codec cannot write, such as bridge or
// vpn, from the old profile.
func carryReadOnly(cs, old nm.ConnectionSettings) {
	for group, props := range old {
		if _, ok := settings.Lookup(group); ok {
			continue
		}
		if _, set := cs[group]; !set {
			cs[group] = nm.ConnectionSettings{group: props}.Clone()[group]
		}
	}
}

// swap deletes the old profile and adds the new one, restoring the snapshot
// when the add fails.
func (m *Manager) swap(ctx context.Context, identity, oldPath string, snapshot, cs nm.ConnectionSettings, id settings.Identity) (Profile, error) {
	var entry string
	if m.journal != nil {
		var err error
		if entry, err = m.journal.Begin(identity, snapshot); err != nil {
			return Profile{}, fault.Wrapf(fault.Internal, OpReplace, identity, err, "journal snapshot")
		}
	}
	log := m.log.WithFields(map[string]any{"op": OpReplace, "profile": identity, "journal": entry})
	settle := func() {
		if m.journal == nil {
			return
		}
		if err := m.journal.Complete(entry); err != nil {
			log.Warn("failed to clear replace journal entry", "error", err)
		}
	}

	if err := m.backend.DeleteConnection(ctx, oldPath); err != nil {
		settle()
		return Profile{}, backendErr(OpReplace, identity, "delete old profile", err)
	}

	path, addErr := m.backend.AddConnection(ctx, cs)
	if addErr == nil {
		settle()
		m.log.Audit(OpReplace, id.ID, map[string]any{"uuid": id.UUID, "type": id.Type})
		return Profile{Path: path, Identity: id}, nil
	}

	cause := backendErr(OpReplace, identity, "add new profile", addErr)
	log.Warn("replace failed, restoring original profile", "error", addErr)

	if _, restoreErr := m.backend.AddConnection(ctx, snapshot); restoreErr != nil {
		m.metrics.RecordRollback(false)
		log.Error("unable to restore original profile", "error", restoreErr)
		return Profile{}, &fault.CompensationFailure{
			Identity:   identity,
			Cause:      cause,
			RestoreErr: backendErr(OpReplace, identity, "restore original profile", restoreErr),
		}
	}
	settle()
	m.metrics.RecordRollback(true)
	log.Audit("restore", identity, map[string]any{"cause": addErr.Error()})
	return Profile{}, &ReplaceError{Identity: identity, Cause: cause, Restored: true}
}

// RecoverPending re-adds journaled snapshots whose profile no longer exists,
// which happens when the process died between the delete and the add of a
// replace. It returns the number of profiles restored.
func (m *Manager) RecoverPending(ctx context.Context) (int, error) {
	if m.journal == nil {
		return 0, nil
	}
	pending, err := m.journal.Pending()
	if err != nil {
		return 0, fmt.Errorf("failed to read replace journal: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	profiles, err := m.all(ctx, "recover", "")
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, e := range pending {
		if _, exists := find(profiles, e.UUID); !exists {
			if _, err := m.backend.AddConnection(ctx, e.Snapshot); err != nil {
				m.log.Error("failed to recover profile from replace journal", "profile", e.Identity, "uuid", e.UUID, "error", err)
				continue
			}
			restored++
			m.log.Audit("recover", e.Identity, map[string]any{"uuid": e.UUID, "started": e.Started})
		}
		if err := m.journal.Complete(e.ID); err != nil {
			m.log.Warn("failed to clear replace journal entry", "entry", e.ID, "error", err)
		}
	}
	return restored, nil
}
