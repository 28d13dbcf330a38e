package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/inventory"
	"grimm.is/halyard/internal/result"
)

// virtualInterfaceRequest adds or removes the AP+STA virtual interface.
type virtualInterfaceRequest struct {
	Interface string `json:"interface" validate:"required,ifname"`
	Type      string `json:"type" validate:"omitempty,eq=STA"`
}

func (s *Server) handleAccessPoints(w http.ResponseWriter, r *http.Request) {
	aps, err := s.inventory.AccessPoints(r.Context())
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("", map[string]any{
		"count":        len(aps),
		"accessPoints": aps,
	}))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.RequestScan(r.Context()); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("Scan requested", nil))
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.inventory.Interfaces(r.Context())
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	WriteJSON(w, http.StatusOK, names)
}

func (s *Server) handleInterface(w http.ResponseWriter, r *http.Request) {
	detail, err := s.inventory.Interface(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) handleInterfaceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.inventory.Stats(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Get(r.Context())
	if err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("", map[string]any{
		"status":  status,
		"devices": len(status),
	}))
}

func (s *Server) handleAddInterface(w http.ResponseWriter, r *http.Request) {
	var req virtualInterfaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	if err := validateRequest(inventory.OpAddVirtual, req); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.addInterface(w, r, req.Interface)
}

func (s *Server) handlePutInterface(w http.ResponseWriter, r *http.Request) {
	s.addInterface(w, r, chi.URLParam(r, "name"))
}

func (s *Server) addInterface(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.addVirtual(r.Context(), name); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"interface": name})
}

func (s *Server) handleRemoveInterface(w http.ResponseWriter, r *http.Request) {
	var req virtualInterfaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	if err := validateRequest(inventory.OpDelVirtual, req); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.removeInterface(w, r, req.Interface)
}

func (s *Server) handleDeleteInterface(w http.ResponseWriter, r *http.Request) {
	s.removeInterface(w, r, chi.URLParam(r, "name"))
}

func (s *Server) removeInterface(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.removeVirtual(r.Context(), name); err != nil {
		s.writeResult(w, r, result.Fail(err))
		return
	}
	s.writeResult(w, r, result.OK("interface removed", map[string]any{"interface": name}))
}

// addVirtual creates the virtual interface. Only the configured name is
// accepted and it must not exist yet.
func (s *Server) addVirtual(ctx context.Context, name string) error {
	if err := s.inventory.CheckVirtualName(inventory.OpAddVirtual, name); err != nil {
		return err
	}
	names, err := s.inventory.Interfaces(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return fault.New(fault.Validation, inventory.OpAddVirtual, name, "interface already exists")
	}
	if err := s.inventory.AddVirtualInterface(ctx); err != nil {
		return err
	}
	s.status.Invalidate()
	return nil
}

// removeVirtual deletes the virtual interface, which must exist.
func (s *Server) removeVirtual(ctx context.Context, name string) error {
	if err := s.inventory.CheckVirtualName(inventory.OpDelVirtual, name); err != nil {
		return err
	}
	names, err := s.inventory.Interfaces(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fault.New(fault.NotFound, inventory.OpDelVirtual, name, "no such interface")
	}
	if err := s.inventory.RemoveVirtualInterface(ctx); err != nil {
		return err
	}
	s.status.Invalidate()
	return nil
}
