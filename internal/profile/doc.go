// Package profile implements the connection profile lifecycle: create,
// replace, patch, delete, activate and deactivate, plus the plain and
// extended read paths.
//
// # Identity
//
// Every operation takes an identity that is matched against profile uuids
// first and ids second. A document carrying both an id and a uuid that name
// two different profiles is rejected as a validation error.
//
// # Replace
//
// The backend has no atomic replace, so [Manager.Replace] snapshots the
// stored profile (secrets included), deletes it and adds the new settings.
// When the add fails the snapshot is added back and the caller receives a
// [ReplaceError] with Restored set, or a [fault.CompensationFailure] when the
// restore failed as well. The sequence runs detached from the caller's
// context so a disconnecting client cannot abandon a rollback. With a
// journal configured the snapshot is also persisted before the delete and
// [Manager.RecoverPending] re-adds it after a crash.
//
// # Errors
//
// All errors are classified with package fault. AlreadyActive and
// AlreadyInactive are returned as errors but [fault.Kind.Noop] reports them
// as satisfied requests.
package profile
