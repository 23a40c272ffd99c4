package mfa

import (
	"context"
	"runtime"

	"github.com/google/uuid"

	"github.com/getkayan/walletkit/api"
	"github.com/getkayan/walletkit/store"
)

// DeviceProvider supplies the fingerprint attached to begin-flow
// requests. It is an external collaborator; richer capability detection
// plugs in behind this interface.
type DeviceProvider interface {
	Info(ctx context.Context) api.DeviceInfo
}

// localDevice persists a random device id under the application
// namespace and reports the running platform.
type localDevice struct {
	kv store.KV
}

func NewLocalDevice(kv store.KV) DeviceProvider {
	return &localDevice{kv: kv}
}

func (d *localDevice) Info(ctx context.Context) api.DeviceInfo {
	id, err := d.kv.Get(ctx, keyDeviceID)
	if err != nil {
		id = uuid.NewString()
		_ = d.kv.Set(ctx, keyDeviceID, id)
	}
	return api.DeviceInfo{ID: id, Platform: runtime.GOOS}
}
