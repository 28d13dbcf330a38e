package profile

import (
	"context"
	"slices"
	"time"

	"grimm.is/halyard/internal/fault"
	"grimm.is/halyard/internal/nm"
	"grimm.is/halyard/internal/settings"
)

// Profile types activated without a device.
var deviceIndependent = []string{"bridge"}

// Activate binds a profile to its device.
func (m *Manager) Activate(ctx context.Context, identity string) (err error) {
	defer func() { m.metrics.RecordProfileOp(OpActivate, err) }()

	p, err := m.resolve(ctx, OpActivate, identity)
	if err != nil {
		return err
	}
	return m.activate(ctx, identity, p.path, p.identity)
}

// Deactivate tears down a profile's active connection.
func (m *Manager) Deactivate(ctx context.Context, identity string) (err error) {
	defer func() { m.metrics.RecordProfileOp(OpDeactivate, err) }()

	p, err := m.resolve(ctx, OpDeactivate, identity)
	if err != nil {
		return err
	}
	return m.deactivate(ctx, identity, p.identity)
}

func (m *Manager) activate(ctx context.Context, identity, path string, id settings.Identity) error {
	_, active, err := m.client.ActiveConnectionByUUID(ctx, id.UUID)
	if err != nil {
		return backendErr(OpActivate, identity, "read active connections", err)
	}
	if active {
		return fault.New(fault.AlreadyActive, OpActivate, identity, "profile is already active")
	}

	device, err := m.compatibleDevice(ctx, identity, path, id)
	if err != nil {
		return err
	}
	if _, err := m.backend.ActivateConnection(ctx, path, device, nm.RootPath); err != nil {
		return backendErr(OpActivate, identity, "activate profile", err)
	}

	ok, err := m.waitFor(ctx, id.UUID, true)
	if err != nil {
		return backendErr(OpActivate, identity, "verify activation", err)
	}
	if !ok {
		return fault.New(fault.Internal, OpActivate, identity, "profile did not become active")
	}
	m.log.Info("profile activated", "profile", id.ID, "uuid", id.UUID, "device", device)
	return nil
}

func (m *Manager) deactivate(ctx context.Context, identity string, id settings.Identity) error {
	ac, active, err := m.client.ActiveConnectionByUUID(ctx, id.UUID)
	if err != nil {
		return backendErr(OpDeactivate, identity, "read active connections", err)
	}
	if !active {
		return fault.New(fault.AlreadyInactive, OpDeactivate, identity, "profile is not active")
	}
	if err := m.backend.DeactivateConnection(ctx, ac.Path); err != nil {
		return backendErr(OpDeactivate, identity, "deactivate profile", err)
	}

	gone, err := m.waitFor(ctx, id.UUID, false)
	if err != nil {
		return backendErr(OpDeactivate, identity, "verify deactivation", err)
	}
	if !gone {
		return fault.New(fault.Internal, OpDeactivate, identity, "profile did not deactivate")
	}
	m.log.Info("profile deactivated", "profile", id.ID, "uuid", id.UUID)
	return nil
}

// compatibleDevice picks the device a profile activates on: "/" for
// device-independent types, else the device named by interface-name, else a
// device that lists the profile among its available connections.
func (m *Manager) compatibleDevice(ctx context.Context, identity, path string, id settings.Identity) (string, error) {
	if slices.Contains(deviceIndependent, id.Type) {
		return nm.RootPath, nil
	}
	devices, err := m.client.Devices(ctx)
	if err != nil {
		return "", backendErr(OpActivate, identity, "list devices", err)
	}
	if id.InterfaceName != "" {
		for _, d := range devices {
			if d.Interface == id.InterfaceName {
				return d.Path, nil
			}
		}
	} else {
		for _, d := range devices {
			if slices.Contains(d.AvailableConnections, path) {
				return d.Path, nil
			}
		}
	}
	return "", fault.New(fault.NotFound, OpActivate, identity, "no compatible device")
}

// waitFor polls until the profile's active connection is present (want) or
// absent (!want).
func (m *Manager) waitFor(ctx context.Context, uuid string, want bool) (bool, error) {
	for i := 0; i < m.attempts; i++ {
		ac, active, err := m.client.ActiveConnectionByUUID(ctx, uuid)
		if err != nil {
			return false, err
		}
		if want && active && ac.State != nm.ActiveStateDeactivating && ac.State != nm.ActiveStateDeactivated {
			return true, nil
		}
		if !want && !active {
			return true, nil
		}
		if i == m.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.interval):
		}
	}
	return false, nil
}
