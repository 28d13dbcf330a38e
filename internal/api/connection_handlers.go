package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/profile"
	"grimm.is/halyard/internal/result"
)

func profileBody(p profile.Profile) map[string]any {
	return map[string]any{
		"id":   p.Identity.ID,
		"uuid": p.Identity.UUID,
		"type": p.Identity.Type,
	}
}

// getOptions reads the extended and legacy query flags.
func getOptions(r *http.Request) (profile.GetOptions, error) {
	var opts profile.GetOptions
	var err error
	q := r.URL.Query()
	if opts.Extended, err = parseFlag(q.Get("extended"), false); err != nil {
		return opts, fault.Wrapf(fault.Validation, profile.OpGet, "", err, "extended")
	}
	if opts.Legacy, err = parseFlag(q.Get("legacy"), false); err != nil {
		return opts, fault.Wrapf(fault.Validation, profile.OpGet, "", err, "legacy")
	}
	return opts, nil
}

func viewPayload(v profile.View) map[string]any {
	out := v.Render()
	if v.FieldErrors.HasErrors() {
		out["fieldErrors"] = v.FieldErrors
	}
	return out
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.profiles.List(r.Context())
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("", map[string]any{
		"count":       len(list),
		"connections": list,
	}))
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	p, err := s.profiles.Create(r.Context(), doc)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.status.Invalidate()
	WriteJSON(w, http.StatusCreated, profileBody(p))
}

func (s *Server) handleReloadConnections(w http.ResponseWriter, r *http.Request) {
	err := s.profiles.Reload(r.Context())
	s.status.Invalidate()
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("connections reloaded", nil))
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	opts, err := getOptions(r)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	view, err := s.profiles.Get(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("", viewPayload(view)))
}

func (s *Server) handleReplaceConnection(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(r)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	p, err := s.profiles.Replace(r.Context(), chi.URLParam(r, "id"), doc)
	s.status.Invalidate()
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("", profileBody(p)))
}

func (s *Server) handlePatchConnection(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	req, err := profile.ParsePatch(body)
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	p, err := s.profiles.Patch(r.Context(), chi.URLParam(r, "id"), req)
	s.status.Invalidate()
	res := result.Fail(err)
	if res.Success() {
		res.Payload = profileBody(p)
		if req.Activate != nil {
			res.Payload["activated"] = *req.Activate
		}
		if err != nil {
			res.Payload["message"] = err.Error()
		}
	}
	s.writeResult(w, r, res)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.profiles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.status.Invalidate()
	s.writeResult(w, r, result.OK("connection deleted", nil))
}
