package inventory

import (
	"context"
	"errors"
	"os"
	"slices"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/logging"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/validation"
)

// Operation names used in errors and metrics.
const (
	OpInterfaces   = "interfaces"
	OpStatus       = "status"
	OpInterface    = "interface"
	OpAccessPoints = "access-points"
	OpScan         = "scan"
	OpStats        = "stats"
	OpAddVirtual   = "add-virtual-interface"
	OpDelVirtual   = "remove-virtual-interface"
)

// Options configures an Aggregator.
type Options struct {
	// Unmanaged devices are excluded from every listing.
	Unmanaged []string
	// ManagedSoftware devices are listed even when the backend does not
	// report them, provided ModemEnableFile exists.
	ManagedSoftware []string
	ModemEnableFile string

	WifiInterface    string
	VirtualInterface string

	IW     *IW
	Links  LinkInspector
	Logger *logging.Logger
}

// Aggregator reads devices, their live status and cached scan results.
type Aggregator struct {
	client          *nm.Client
	unmanaged       []string
	managedSoftware []string
	modemEnableFile string
	wifi            string
	virtual         string
	iw              *IW
	links           LinkInspector
	log             *logging.Logger
	metrics         *metrics.Registry
}

// NewAggregator creates an Aggregator over client.
func NewAggregator(client *nm.Client, opts Options) *Aggregator {
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("inventory")
	}
	links := opts.Links
	if links == nil {
		links = NewSystemLinks()
	}
	iw := opts.IW
	if iw == nil {
		iw = NewIW("/usr/sbin/iw", 0, nil, log)
	}
	return &Aggregator{
		client:          client,
		unmanaged:       slices.Clone(opts.Unmanaged),
		managedSoftware: slices.Clone(opts.ManagedSoftware),
		modemEnableFile: opts.ModemEnableFile,
		wifi:            opts.WifiInterface,
		virtual:         opts.VirtualInterface,
		iw:              iw,
		links:           links,
		log:             log,
		metrics:         metrics.Get(),
	}
}

// IsUnmanaged reports whether name is in the configured unmanaged set.
func (a *Aggregator) IsUnmanaged(name string) bool {
	return slices.Contains(a.unmanaged, name)
}

func backendErr(op, identity, step string, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, nm.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fault.Wrapf(fault.BackendUnavailable, op, identity, err, "%s", step)
	case errors.Is(err, nm.ErrUnknownObject):
		return fault.Wrapf(fault.NotFound, op, identity, err, "%s", step)
	}
	return fault.Wrapf(fault.Internal, op, identity, err, "%s", step)
}

func errNoWifi(op string) error {
	return fault.New(fault.NotFound, op, "", "Wi-Fi interface not found")
}

// devices reads every device outside the unmanaged set.
func (a *Aggregator) devices(ctx context.Context, op string) ([]nm.Device, error) {
	all, err := a.client.Devices(ctx)
	if err != nil {
		a.metrics.RecordBackendError("GetDevices")
		return nil, backendErr(op, "", "list devices", err)
	}
	return slices.DeleteFunc(all, func(d nm.Device) bool {
		return a.IsUnmanaged(d.Interface)
	}), nil
}

// Interfaces lists the managed interface names. Devices the backend does not
// manage are skipped; the managed software devices are appended when the
// modem enable file exists.
func (a *Aggregator) Interfaces(ctx context.Context) ([]string, error) {
	devices, err := a.devices(ctx, OpInterfaces)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, d := range devices {
		if d.State == nm.DeviceStateUnmanaged || d.Interface == "" {
			continue
		}
		out = append(out, d.Interface)
	}
	if a.modemEnableFile != "" {
		if _, err := os.Stat(a.modemEnableFile); err == nil {
			for _, name := range a.managedSoftware {
				if !slices.Contains(out, name) && !a.IsUnmanaged(name) {
					out = append(out, name)
				}
			}
		}
	}
	return out, nil
}

// checkManaged fails with NotFound unless name is a managed interface.
func (a *Aggregator) checkManaged(ctx context.Context, op, name string) error {
	names, err := a.Interfaces(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fault.New(fault.NotFound, op, name, "no such interface")
	}
	return nil
}

// VirtualInterface returns the configured virtual interface name, if any.
func (a *Aggregator) VirtualInterface() string { return a.virtual }

// CheckVirtualName rejects any interface name other than the configured
// virtual interface.
func (a *Aggregator) CheckVirtualName(op, name string) error {
	if a.virtual == "" {
		return fault.New(fault.Validation, op, name, "no virtual interface configured")
	}
	if err := validation.ValidateAllowlist(name, []string{a.virtual}); err != nil {
		return fault.New(fault.Validation, op, name, "only %s is supported", a.virtual)
	}
	return nil
}

// AddVirtualInterface creates the configured AP+STA virtual interface.
func (a *Aggregator) AddVirtualInterface(ctx context.Context) error {
	if a.wifi == "" || a.virtual == "" {
		return fault.New(fault.Validation, OpAddVirtual, a.virtual, "no virtual interface configured")
	}
	if err := a.iw.AddInterface(ctx, a.wifi, a.virtual); err != nil {
		return fault.Wrapf(fault.Internal, OpAddVirtual, a.virtual, err, "iw dev %s interface add", a.wifi)
	}
	a.log.Audit("create", "interface/"+a.virtual, map[string]any{"parent": a.wifi})
	return nil
}

// RemoveVirtualInterface deletes the configured virtual interface.
func (a *Aggregator) RemoveVirtualInterface(ctx context.Context) error {
	if a.virtual == "" {
		return fault.New(fault.Validation, OpDelVirtual, "", "no virtual interface configured")
	}
	if err := a.iw.DeleteInterface(ctx, a.virtual); err != nil {
		return fault.Wrapf(fault.Internal, OpDelVirtual, a.virtual, err, "iw dev %s del", a.virtual)
	}
	a.log.Audit("delete", "interface/"+a.virtual, nil)
	return nil
}
