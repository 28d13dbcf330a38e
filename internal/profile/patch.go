package profile

import (
	"context"
	"fmt"
	"maps"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/settings"
)

// PatchRequest is a parsed PATCH body: setting groups to merge and an
// optional activation command.
type PatchRequest struct {
	Settings settings.Document
	// Activate is nil when the body carries no activation command.
	Activate *bool
}

// ParsePatch splits a decoded JSON body into settings and an activation
// command. Both {"activate": bool} and the legacy connection.activated
// (true/false, 1/0, "1"/"0") are accepted.
func ParsePatch(body map[string]any) (PatchRequest, error) {
	var req PatchRequest
	var errs settings.ValidationErrors

	rest := maps.Clone(body)
	if v, ok := rest["activate"]; ok {
		delete(rest, "activate")
		b, err := activationFlag(v)
		if err != nil {
			errs.Add("activate", "%v", err)
		} else {
			req.Activate = &b
		}
	}
	if conn, ok := rest[settings.GroupConnection].(map[string]any); ok {
		if v, ok := conn["activated"]; ok {
			conn = maps.Clone(conn)
			delete(conn, "activated")
			rest[settings.GroupConnection] = conn
			if len(conn) == 0 {
				delete(rest, settings.GroupConnection)
			}
			b, err := activationFlag(v)
			if err != nil {
				errs.Add("connection.activated", "%v", err)
			} else if req.Activate == nil {
				req.Activate = &b
			}
		}
	}

	doc, err := settings.DocumentFromMap(rest)
	if verrs, ok := err.(settings.ValidationErrors); ok {
		errs = append(errs, verrs...)
	}
	if errs.HasErrors() {
		return PatchRequest{}, errs
	}
	req.Settings = doc
	if len(req.Settings) == 0 && req.Activate == nil {
		errs.Add("body", "nothing to patch")
		return PatchRequest{}, errs
	}
	return req, nil
}

func activationFlag(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case int:
		if b == 0 || b == 1 {
			return b == 1, nil
		}
	case string:
		switch b {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected a boolean, got %v", v)
}

// Patch merges settings into a stored profile without deleting it and then
// applies the activation command, if any. A no-op activation is returned as
// an AlreadyActive or AlreadyInactive error.
func (m *Manager) Patch(ctx context.Context, identity string, req PatchRequest) (_ Profile, err error) {
	defer func() { m.metrics.RecordProfileOp(OpPatch, err) }()

	p, err := m.resolve(ctx, OpPatch, identity)
	if err != nil {
		return Profile{}, err
	}
	result := Profile{Path: p.path, Identity: p.identity}

	if len(req.Settings) > 0 {
		if result, err = m.update(ctx, identity, p, req.Settings); err != nil {
			return Profile{}, err
		}
	}

	if req.Activate != nil {
		if *req.Activate {
			err = m.activate(ctx, identity, result.Path, result.Identity)
		} else {
			err = m.deactivate(ctx, identity, result.Identity)
		}
	}
	return result, err
}

func (m *Manager) update(ctx context.Context, identity string, p stored, doc settings.Document) (Profile, error) {
	partial, err := m.parse(OpPatch, identity, doc)
	if err != nil {
		return Profile{}, err
	}

	profiles, err := m.all(ctx, OpPatch, identity)
	if err != nil {
		return Profile{}, err
	}
	id := settings.IdentityOf(partial)
	if err := checkDocumentIdentity(OpPatch, profiles, id); err != nil {
		return Profile{}, err
	}
	if id.UUID != "" && id.UUID != p.identity.UUID {
		var errs settings.ValidationErrors
		errs.Add("connection.uuid", "cannot be changed (profile uuid is %s)", p.identity.UUID)
		return Profile{}, fault.Wrap(fault.Validation, OpPatch, identity, errs)
	}
	if err := checkUnique(OpPatch, profiles, id, p.path); err != nil {
		return Profile{}, err
	}

	current, err := m.fullSettings(ctx, OpPatch, identity, p.path)
	if err != nil {
		return Profile{}, err
	}
	current.Merge(partial)
	if _, ok := current[settings.GroupConnection]; !ok {
		current[settings.GroupConnection] = map[string]nm.Variant{}
	}

	if err := m.backend.UpdateConnection(ctx, p.path, current); err != nil {
		return Profile{}, backendErr(OpPatch, identity, "update profile", err)
	}
	next := settings.IdentityOf(current)
	m.log.Audit(OpPatch, next.ID, map[string]any{"uuid": next.UUID, "groups": len(doc)})
	return Profile{Path: p.path, Identity: next}, nil
}
