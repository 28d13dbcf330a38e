package profile

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/settings"
	"grimm.is/halyard/internal/state"
)

// Operation names used in errors, audit records and metrics.
const (
	OpCreate     = "create"
	OpReplace    = "replace"
	OpPatch      = "patch"
	OpDelete     = "delete"
	OpActivate   = "activate"
	OpDeactivate = "deactivate"
	OpGet        = "get"
	OpList       = "list"
	OpReload     = "reload"
)

// Options configures a Manager.
type Options struct {
	// CertDir is where certificate basenames are resolved.
	CertDir string
	// Reserved profiles (by id or uuid) cannot be deleted or replaced.
	Reserved []string
	// Unmanaged interfaces; profiles bound to them are hidden from List.
	Unmanaged []string
	// VerifyAttempts and VerifyInterval bound the poll that confirms an
	// activation or deactivation took effect.
	VerifyAttempts int
	VerifyInterval time.Duration
	// Journal persists replace snapshots. Optional.
	Journal *state.ReplaceJournal
	Logger  *logging.Logger
}

// Manager runs profile operations against a backend.
type Manager struct {
	client    *nm.Client
	backend   nm.Backend
	codec     *settings.Codec
	reserved  []string
	unmanaged []string
	attempts  int
	interval  time.Duration
	journal   *state.ReplaceJournal
	log       *logging.Logger
	metrics   *metrics.Registry
	newUUID   func() string
}

// NewManager creates a Manager.
func NewManager(client *nm.Client, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("profile")
	}
	attempts := opts.VerifyAttempts
	if attempts <= 0 {
		attempts = 5
	}
	interval := opts.VerifyInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Manager{
		client:    client,
		backend:   client.Backend(),
		codec:     settings.NewCodec(opts.CertDir),
		reserved:  slices.Clone(opts.Reserved),
		unmanaged: slices.Clone(opts.Unmanaged),
		attempts:  attempts,
		interval:  interval,
		journal:   opts.Journal,
		log:       log,
		metrics:   metrics.Get(),
		newUUID:   uuid.NewString,
	}
}

// Codec returns the codec used for translation.
func (m *Manager) Codec() *settings.Codec { return m.codec }

// Profile is a stored profile as returned by write operations.
type Profile struct {
	Path     string            `json:"-"`
	Identity settings.Identity `json:"identity"`
}

// Summary is one entry of List.
type Summary struct {
	ID        string `json:"id"`
	UUID      string `json:"uuid"`
	Type      string `json:"type"`
	Activated bool   `json:"activated"`
	// Mode is the 802-11-wireless mode of a wireless profile.
	Mode string `json:"-"`
}

// stored is a resolved profile.
type stored struct {
	path     string
	settings nm.ConnectionSettings
	identity settings.Identity
}

// IsReserved reports whether a profile is protected.
func (m *Manager) IsReserved(id settings.Identity) bool {
	for _, r := range m.reserved {
		if r != "" && (r == id.ID || r == id.UUID) {
			return true
		}
	}
	return false
}

// backendErr classifies a backend failure for op on identity.
func backendErr(op, identity, step string, err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, nm.ErrUnavailable):
		return fault.Wrapf(fault.BackendUnavailable, op, identity, err, "%s", step)
	case errors.Is(err, nm.ErrUnknownObject):
		return fault.Wrapf(fault.NotFound, op, identity, err, "%s", step)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fault.Wrapf(fault.BackendUnavailable, op, identity, err, "%s", step)
	}
	return fault.Wrapf(fault.Internal, op, identity, err, "%s", step)
}

// all reads every stored profile.
func (m *Manager) all(ctx context.Context, op, identity string) ([]stored, error) {
	conns, err := m.client.Connections(ctx)
	if err != nil {
		return nil, backendErr(op, identity, "list profiles", err)
	}
	out := make([]stored, 0, len(conns))
	for _, c := range conns {
		out = append(out, stored{path: c.Path, settings: c.Settings, identity: settings.IdentityOf(c.Settings)})
	}
	return out, nil
}

// find matches identity against uuids first, then ids.
func find(profiles []stored, identity string) (stored, bool) {
	if identity == "" {
		return stored{}, false
	}
	for _, p := range profiles {
		if p.identity.UUID == identity {
			return p, true
		}
	}
	for _, p := range profiles {
		if p.identity.ID == identity {
			return p, true
		}
	}
	return stored{}, false
}

// resolve finds one profile or returns NotFound.
func (m *Manager) resolve(ctx context.Context, op, identity string) (stored, error) {
	profiles, err := m.all(ctx, op, identity)
	if err != nil {
		return stored{}, err
	}
	p, ok := find(profiles, identity)
	if !ok {
		return stored{}, fault.New(fault.NotFound, op, identity, "no such profile")
	}
	return p, nil
}

// checkDocumentIdentity rejects an id and uuid that name different profiles.
func checkDocumentIdentity(op string, profiles []stored, id settings.Identity) error {
	if id.ID == "" || id.UUID == "" {
		return nil
	}
	byID, okID := find(profiles, id.ID)
	byUUID, okUUID := find(profiles, id.UUID)
	if okID && okUUID && byID.path != byUUID.path {
		var errs settings.ValidationErrors
		errs.Add("connection", "MismatchedIdentity: id %q and uuid %q name different profiles", id.ID, id.UUID)
		return fault.Wrap(fault.Validation, op, id.ID, errs)
	}
	return nil
}

// checkUnique enforces id and uuid uniqueness against every profile except self.
func checkUnique(op string, profiles []stored, id settings.Identity, self string) error {
	for _, p := range profiles {
		if p.path == self {
			continue
		}
		if id.ID != "" && p.identity.ID == id.ID {
			return fault.New(fault.Conflict, op, id.ID, "id already used by profile %s", p.identity.UUID)
		}
		if id.UUID != "" && p.identity.UUID == id.UUID {
			return fault.New(fault.Conflict, op, id.UUID, "uuid already exists")
		}
	}
	return nil
}

// fullSettings reads a profile including its secrets. Secret groups the
// backend cannot serve are skipped.
func (m *Manager) fullSettings(ctx context.Context, op, identity, path string) (nm.ConnectionSettings, error) {
	cs, err := m.backend.GetSettings(ctx, path)
	if err != nil {
		return nil, backendErr(op, identity, "read settings", err)
	}
	for _, group := range nm.SecretGroups() {
		if _, ok := cs[group]; !ok {
			continue
		}
		secrets, err := m.backend.GetSecrets(ctx, path, group)
		if err != nil {
			if errors.Is(err, nm.ErrUnavailable) {
				return nil, backendErr(op, identity, "read secrets", err)
			}
			m.log.Debug("secrets unavailable", "profile", identity, "group", group, "error", err)
			continue
		}
		cs.Merge(secrets)
	}
	return cs, nil
}

// parse validates a document and converts it to backend settings.
func (m *Manager) parse(op, identity string, doc settings.Document) (nm.ConnectionSettings, error) {
	cs, err := m.codec.FromJSON(doc)
	if err != nil {
		return nil, fault.Wrap(fault.Validation, op, identity, err)
	}
	return cs, nil
}

// prepareNew fills what a new profile needs: required identity fields, a
// uuid and the wireless mode default.
func (m *Manager) prepareNew(op string, cs nm.ConnectionSettings) (settings.Identity, error) {
	id := settings.IdentityOf(cs)
	var errs settings.ValidationErrors
	if id.ID == "" {
		errs.Add("connection.id", "is required")
	}
	if id.Type == "" {
		errs.Add("connection.type", "is required")
	}
	if errs.HasErrors() {
		return id, fault.Wrap(fault.Validation, op, id.ID, errs)
	}

	if id.UUID == "" {
		id.UUID = m.newUUID()
		cs[settings.GroupConnection]["uuid"] = nm.String(id.UUID)
	}
	if id.Type == settings.GroupWireless {
		if _, ok := cs[settings.GroupWireless]; !ok {
			cs[settings.GroupWireless] = map[string]nm.Variant{}
		}
		if settings.WirelessMode(cs) == "" {
			cs[settings.GroupWireless]["mode"] = nm.String("infrastructure")
		}
	}
	return id, nil
}

// Create adds a new profile.
func (m *Manager) Create(ctx context.Context, doc settings.Document) (_ Profile, err error) {
	defer func() { m.metrics.RecordProfileOp(OpCreate, err) }()

	docID := settings.IdentityOfDocument(doc)
	cs, err := m.parse(OpCreate, docID.ID, doc)
	if err != nil {
		return Profile{}, err
	}
	profiles, err := m.all(ctx, OpCreate, docID.ID)
	if err != nil {
		return Profile{}, err
	}
	return m.create(ctx, OpCreate, profiles, cs)
}

func (m *Manager) create(ctx context.Context, op string, profiles []stored, cs nm.ConnectionSettings) (Profile, error) {
	id, err := m.prepareNew(op, cs)
	if err != nil {
		return Profile{}, err
	}
	if err := checkDocumentIdentity(op, profiles, id); err != nil {
		return Profile{}, err
	}
	if err := checkUnique(op, profiles, id, ""); err != nil {
		return Profile{}, err
	}

	path, err := m.backend.AddConnection(ctx, cs)
	if err != nil {
		return Profile{}, backendErr(op, id.ID, "add profile", err)
	}
	m.log.Audit(op, id.ID, map[string]any{"uuid": id.UUID, "type": id.Type})
	return Profile{Path: path, Identity: id}, nil
}

// Delete removes a profile.
func (m *Manager) Delete(ctx context.Context, identity string) (err error) {
	defer func() { m.metrics.RecordProfileOp(OpDelete, err) }()

	p, err := m.resolve(ctx, OpDelete, identity)
	if err != nil {
		return err
	}
	if m.IsReserved(p.identity) {
		return fault.New(fault.Reserved, OpDelete, identity, "profile is reserved")
	}
	if err := m.backend.DeleteConnection(ctx, p.path); err != nil {
		return backendErr(OpDelete, identity, "delete profile", err)
	}
	m.log.Audit(OpDelete, p.identity.ID, map[string]any{"uuid": p.identity.UUID})
	return nil
}

// Reload asks the backend to re-read profiles from disk.
func (m *Manager) Reload(ctx context.Context) (err error) {
	defer func() { m.metrics.RecordProfileOp(OpReload, err) }()
	if err := m.backend.ReloadConnections(ctx); err != nil {
		return backendErr(OpReload, "", "reload profiles", err)
	}
	return nil
}

// List returns every profile not bound to an unmanaged interface. For
// wireless profiles Type carries the wireless mode.
func (m *Manager) List(ctx context.Context) (_ []Summary, err error) {
	defer func() { m.metrics.RecordProfileOp(OpList, err) }()

	profiles, err := m.all(ctx, OpList, "")
	if err != nil {
		return nil, err
	}
	active, err := m.client.ActiveConnections(ctx)
	if err != nil {
		return nil, backendErr(OpList, "", "list active connections", err)
	}
	activeUUIDs := make(map[string]bool, len(active))
	for _, ac := range active {
		activeUUIDs[ac.UUID] = true
	}

	out := make([]Summary, 0, len(profiles))
	for _, p := range profiles {
		if p.identity.InterfaceName != "" && slices.Contains(m.unmanaged, p.identity.InterfaceName) {
			continue
		}
		typ := p.identity.Type
		var mode string
		if typ == settings.GroupWireless {
			if mode = settings.WirelessMode(p.settings); mode != "" {
				typ = mode
			}
		}
		out = append(out, Summary{
			ID:        p.identity.ID,
			UUID:      p.identity.UUID,
			Type:      typ,
			Activated: activeUUIDs[p.identity.UUID],
			Mode:      mode,
		})
	}
	return out, nil
}

// GetOptions selects the rendering of Get.
type GetOptions struct {
	// Extended merges live state from the active connection.
	Extended bool
	// Legacy renders the legacy key names and derived fields.
	Legacy bool
}

// Get renders one profile. Secrets are always redacted. Field problems such
// as an undecodable SSID are reported in View.FieldErrors, not as an error.
func (m *Manager) Get(ctx context.Context, identity string, opts GetOptions) (_ View, err error) {
	defer func() { m.metrics.RecordProfileOp(OpGet, err) }()

	p, err := m.resolve(ctx, OpGet, identity)
	if err != nil {
		return View{}, err
	}
	cs, err := m.fullSettings(ctx, OpGet, identity, p.path)
	if err != nil {
		return View{}, err
	}

	codec := m.codec
	if opts.Legacy {
		codec = codec.WithLegacy()
	}
	view := View{Identity: p.identity}
	doc, derr := codec.ToJSON(cs)
	view.Settings = doc
	var verrs settings.ValidationErrors
	if errors.As(derr, &verrs) {
		view.FieldErrors = verrs
	} else if derr != nil {
		return View{}, fault.Wrap(fault.Internal, OpGet, identity, derr)
	}

	if opts.Extended {
		view.Live = m.liveState(ctx, p.identity.UUID, opts.Legacy)
	}
	return view, nil
}
