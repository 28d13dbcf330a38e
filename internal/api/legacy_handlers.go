package api

import (
	"errors"
	"fmt"
	"net/http"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/profile"
	"grimm.is/halyard/internal/result"
	"grimm.is/halyard/internal/settings"
)

// The /networking routes keep the request and response shapes of the first
// generation API: every response is 200 with an {SDCERR, InfoMsg} envelope.

var errLegacyInput = errors.New("invalid request")

func legacyFail(format string, args ...any) result.Result {
	return result.Failf(fault.Wrap(fault.Validation, "legacy", "", errLegacyInput), fmt.Sprintf(format, args...))
}

func legacyStats(st metrics.InterfaceStats) map[string]int64 {
	return map[string]int64{
		"rx_bytes":   st.RxBytes,
		"rx_packets": st.RxPackets,
		"rx_errors":  st.RxErrors,
		"rx_dropped": st.RxDropped,
		"multicast":  st.Multicast,
		"tx_bytes":   st.TxBytes,
		"tx_packets": st.TxPackets,
		"tx_errors":  st.TxErrors,
		"tx_dropped": st.TxDropped,
	}
}

func (s *Server) handleLegacyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Get(r.Context())
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, "Could not retrieve network status"))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{
		"status":  status,
		"devices": len(status),
	}))
}

func (s *Server) handleLegacyConnections(w http.ResponseWriter, r *http.Request) {
	list, err := s.profiles.List(r.Context())
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, "Error retrieving connections").
			With("count", 0).
			With("connections", map[string]any{}))
		return
	}
	conns := make(map[string]any, len(list))
	for _, c := range list {
		typ := "n/a"
		if c.Mode != "" {
			typ = c.Mode
		}
		activated := 0
		if c.Activated {
			activated = 1
		}
		conns[c.UUID] = map[string]any{"id": c.ID, "type": typ, "activated": activated}
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{
		"count":       len(conns),
		"connections": conns,
	}))
}

// legacyActivateRequest activates a profile when Activate is 1 or "1" and
// deactivates it otherwise.
type legacyActivateRequest struct {
	UUID     string `json:"uuid"`
	Activate any    `json:"activate"`
}

func (s *Server) handleLegacyActivate(w http.ResponseWriter, r *http.Request) {
	var req legacyActivateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLegacy(w, r, result.Failf(err, "unable to set connection"))
		return
	}
	if req.UUID == "" {
		s.writeLegacy(w, r, legacyFail("Missing UUID"))
		return
	}

	ctx := r.Context()
	if req.Activate == float64(1) || req.Activate == "1" {
		err := s.profiles.Activate(ctx, req.UUID)
		s.status.Invalidate()
		if err != nil && !fault.KindOf(err).Noop() {
			s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to activate connection - %v", err)))
			return
		}
		s.writeLegacy(w, r, result.OK("Connection Activated", nil))
		return
	}

	err := s.profiles.Deactivate(ctx, req.UUID)
	s.status.Invalidate()
	if err != nil && !fault.KindOf(err).Noop() {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to deactivate connection - %v", err)))
		return
	}
	s.writeLegacy(w, r, result.OK("Connection Deactivated", nil))
}

func (s *Server) handleLegacyGetConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uuid := q.Get("uuid")
	if uuid == "" {
		s.writeLegacy(w, r, legacyFail("no UUID provided"))
		return
	}
	extended, err := parseFlag(q.Get("extended"), false)
	if err != nil {
		s.writeLegacy(w, r, legacyFail("Unable to get extended connection info. Supplied extended parameter '%s' invalid.", q.Get("extended")))
		return
	}

	view, err := s.profiles.Get(r.Context(), uuid, profile.GetOptions{Extended: extended, Legacy: true})
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to retrieve connection info - %v", err)))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{"connection": view.Render()}))
}

func (s *Server) handleLegacyPostConnection(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to create connection - %v", err)))
		return
	}
	conn, _ := body[settings.GroupConnection].(map[string]any)
	if len(conn) == 0 {
		s.writeLegacy(w, r, legacyFail("Missing connection section"))
		return
	}
	id, _ := conn["id"].(string)
	if id == "" {
		s.writeLegacy(w, r, legacyFail("connection section must have an id element"))
		return
	}
	uuid, _ := conn["uuid"].(string)

	ctx := r.Context()
	list, err := s.profiles.List(ctx)
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Could not update connection - %v", err)))
		return
	}
	existing := false
	for _, c := range list {
		if uuid != "" && c.UUID == uuid {
			existing = true
		}
		if c.ID == id {
			if uuid != "" && c.UUID != uuid {
				s.writeLegacy(w, r, legacyFail("Could not update connection - Provided uuid does not match uuid of given id"))
				return
			}
			uuid = c.UUID
			existing = true
		}
	}
	if uuid == "" {
		delete(conn, "uuid")
	} else {
		conn["uuid"] = uuid
	}

	doc, err := settings.DocumentFromMap(body)
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to create connection - %v", err)))
		return
	}

	if existing {
		_, err := s.profiles.Replace(ctx, uuid, doc)
		s.status.Invalidate()
		if err != nil {
			s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Could not update connection %s", id)))
			return
		}
		s.writeLegacy(w, r, result.OK(fmt.Sprintf("connection %s updated", id), nil))
		return
	}

	if _, err := s.profiles.Create(ctx, doc); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to create connection - %v", err)))
		return
	}
	s.status.Invalidate()
	s.writeLegacy(w, r, result.OK(fmt.Sprintf("connection %s created", id), nil))
}

func (s *Server) handleLegacyDeleteConnection(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("uuid")
	if uuid == "" {
		s.writeLegacy(w, r, legacyFail("Missing UUID"))
		return
	}
	if err := s.profiles.Delete(r.Context(), uuid); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to delete connection - %v", err)))
		return
	}
	s.status.Invalidate()
	s.writeLegacy(w, r, result.OK("Connection deleted", nil))
}

func (s *Server) handleLegacyAccessPoints(w http.ResponseWriter, r *http.Request) {
	aps, err := s.inventory.AccessPoints(r.Context())
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, "Unable to get access point list").
			With("count", 0).
			With("accesspoints", []any{}))
		return
	}
	out := make([]map[string]any, 0, len(aps))
	for _, ap := range aps {
		out = append(out, ap.Legacy())
	}
	if len(out) == 0 {
		s.writeLegacy(w, r, result.Failf(fault.New(fault.NotFound, "access-points", "", "no access points"), "No access points found").
			With("count", 0).
			With("accesspoints", out))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{
		"count":        len(out),
		"accesspoints": out,
	}))
}

func (s *Server) handleLegacyScan(w http.ResponseWriter, r *http.Request) {
	if err := s.inventory.RequestScan(r.Context()); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to start scan request: %v", err)))
		return
	}
	s.writeLegacy(w, r, result.OK("Scan requested", nil))
}

func (s *Server) handleLegacyInterfaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.inventory.Interfaces(r.Context())
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, "Could not retrieve list of interfaces").With("interfaces", []string{}))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{"interfaces": names}))
}

type legacyInterfaceRequest struct {
	Interface string `json:"interface"`
	Type      string `json:"type"`
}

func (s *Server) handleLegacyAddInterface(w http.ResponseWriter, r *http.Request) {
	var req legacyInterfaceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeLegacy(w, r, result.Failf(err, "Missing interface section"))
		return
	}
	switch {
	case req.Interface == "":
		s.writeLegacy(w, r, legacyFail("Missing interface section"))
		return
	case req.Type == "":
		s.writeLegacy(w, r, legacyFail("Missing type section"))
		return
	case req.Type != "STA" && req.Type != "managed":
		s.writeLegacy(w, r, legacyFail("Invalid type %s. Supported type: STA", req.Type))
		return
	}

	if err := s.addVirtual(r.Context(), req.Interface); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to add virtual interface %s.", req.Interface)))
		return
	}
	s.writeLegacy(w, r, result.OK(fmt.Sprintf("Virtual interface %s added", req.Interface), nil))
}

func (s *Server) handleLegacyRemoveInterface(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("interface")
	if err := s.removeVirtual(r.Context(), name); err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Unable to remove interface %s", name)))
		return
	}
	s.writeLegacy(w, r, result.OK(fmt.Sprintf("Virtual interface %s removed", name), nil))
}

func (s *Server) handleLegacyInterface(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeLegacy(w, r, legacyFail("no interface name provided"))
		return
	}
	detail, err := s.inventory.Interface(r.Context(), name)
	if err != nil {
		msg := "Unable to retrieve detailed network interface configuration"
		if fault.Is(err, fault.NotFound) {
			msg = "invalid interface name provided"
		}
		s.writeLegacy(w, r, result.Failf(err, msg))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{"properties": detail}))
}

func (s *Server) handleLegacyInterfaceStats(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeLegacy(w, r, legacyFail("No interface name provided").
			With("statistics", legacyStats(metrics.UnknownInterfaceStats(""))))
		return
	}
	stats, err := s.inventory.Stats(r.Context(), name)
	if err != nil {
		s.writeLegacy(w, r, result.Failf(err, fmt.Sprintf("Could not read interface statistics - %v", err)).
			With("statistics", legacyStats(metrics.UnknownInterfaceStats(name))))
		return
	}
	s.writeLegacy(w, r, result.OK("", map[string]any{"statistics": legacyStats(stats)}))
}
