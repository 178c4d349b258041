package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/storage"
	"github.com/motion-hub/motion-hub/internal/transport"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// memStore is an in-memory Store for tests
type memStore struct {
	mu      sync.Mutex
	devices map[motion.MACAddress]*models.Device
	events  []*models.EventLog
}

func newMemStore() *memStore {
	return &memStore{devices: make(map[motion.MACAddress]*models.Device)}
}

func (s *memStore) CreateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[device.MAC]; ok {
		return storage.ErrDuplicateKey
	}
	s.devices[device.MAC] = device
	return nil
}

func (s *memStore) GetDevice(ctx context.Context, mac motion.MACAddress) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[mac]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *device
	return &copied, nil
}

func (s *memStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[device.MAC]; !ok {
		return storage.ErrNotFound
	}
	s.devices[device.MAC] = device
	return nil
}

func (s *memStore) DeleteDevice(ctx context.Context, mac motion.MACAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[mac]; !ok {
		return storage.ErrNotFound
	}
	delete(s.devices, mac)
	return nil
}

func (s *memStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) TouchDeviceSeen(ctx context.Context, mac motion.MACAddress, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if device, ok := s.devices[mac]; ok {
		device.LastSeenAt = &at
	}
	return nil
}

func (s *memStore) CreateUser(ctx context.Context, user *models.User) error { return nil }
func (s *memStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return nil, storage.ErrNotFound
}
func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, storage.ErrNotFound
}
func (s *memStore) UpdateUser(ctx context.Context, user *models.User) error { return nil }

func (s *memStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) ListEventLogs(ctx context.Context, filters storage.EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, int64(len(s.events)), nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testConfig() Config {
	return Config{
		Timings:         testTimings(),
		StatusFreshness: time.Second,
	}
}

func testManager(t *testing.T) (*Manager, *memStore, *transport.SimDialer) {
	t.Helper()
	store := newMemStore()
	dialer := transport.NewSimDialer()
	manager := NewManager(testConfig(), dialer, store)
	t.Cleanup(manager.Close)
	return manager, store, dialer
}

func registerMotor(t *testing.T, store *memStore, dialer *transport.SimDialer, addr string, blindType motion.BlindType) motion.MACAddress {
	t.Helper()
	mac, err := motion.ParseMAC(addr)
	require.NoError(t, err)

	require.NoError(t, store.CreateDevice(context.Background(), &models.Device{
		MAC:       mac,
		Name:      addr,
		BlindType: blindType,
	}))
	dialer.AddMotor(transport.NewSimMotor(mac))
	return mac
}

func TestDispatchUnknownDevice(t *testing.T) {
	manager, _, _ := testManager(t)

	mac, err := motion.ParseMAC("00:00:00:00:00:01")
	require.NoError(t, err)

	_, err = manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, models.ErrUnknownDevice)
}

func TestDispatchDisabledDevice(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:01", motion.BlindTypePosition)

	device, err := store.GetDevice(context.Background(), mac)
	require.NoError(t, err)
	device.IsDisabled = true
	require.NoError(t, store.UpdateDevice(context.Background(), device))

	_, err = manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, models.ErrUnknownDevice)
}

func TestDispatchRunsCommand(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:02", motion.BlindTypePosition)

	snap, err := manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandStatus})
	require.NoError(t, err)
	require.NotNil(t, snap.Position)
	assert.Equal(t, models.StateConnected, manager.State(mac))

	// Every dispatch leaves an event log entry and touches last-seen
	assert.Eventually(t, func() bool {
		device, err := store.GetDevice(context.Background(), mac)
		return err == nil && device.LastSeenAt != nil && store.eventCount() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestStatusUsesFreshCache(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:03", motion.BlindTypePosition)

	first, err := manager.Status(context.Background(), mac)
	require.NoError(t, err)

	// A second status inside the freshness window returns the same snapshot
	// without another radio round trip.
	second, err := manager.Status(context.Background(), mac)
	require.NoError(t, err)
	assert.Equal(t, first.AsOf, second.AsOf)
}

func TestStatusRefreshesStaleCache(t *testing.T) {
	store := newMemStore()
	dialer := transport.NewSimDialer()
	cfg := testConfig()
	cfg.StatusFreshness = 50 * time.Millisecond
	manager := NewManager(cfg, dialer, store)
	t.Cleanup(manager.Close)

	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:04", motion.BlindTypePosition)

	first, err := manager.Status(context.Background(), mac)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	second, err := manager.Status(context.Background(), mac)
	require.NoError(t, err)
	assert.True(t, second.AsOf.After(first.AsOf))
}

func TestDevicesRunInParallel(t *testing.T) {
	manager, store, dialer := testManager(t)
	dialer.Latency = 50 * time.Millisecond

	macA := registerMotor(t, store, dialer, "aa:bb:cc:00:00:05", motion.BlindTypePosition)
	macB := registerMotor(t, store, dialer, "aa:bb:cc:00:00:06", motion.BlindTypePosition)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, mac := range []motion.MACAddress{macA, macB} {
		wg.Add(1)
		go func(i int, mac motion.MACAddress) {
			defer wg.Done()
			_, errs[i] = manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandOpen})
		}(i, mac)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Serialized, the two dials alone would take twice the latency
	assert.Less(t, time.Since(start), 2*(50*time.Millisecond)+400*time.Millisecond)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:07", motion.BlindTypePosition)

	events, cancel := manager.Subscribe()
	defer cancel()

	_, err := manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandConnect})
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, mac, event.MAC)
	case <-time.After(time.Second):
		t.Fatal("no status event received")
	}
}

func TestRemoveShutsSessionDown(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:08", motion.BlindTypePosition)

	_, err := manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandConnect})
	require.NoError(t, err)
	require.Equal(t, models.StateConnected, manager.State(mac))

	manager.Remove(mac)
	assert.Equal(t, models.StateDisconnected, manager.State(mac))

	// The next dispatch recreates the session from the registry
	_, err = manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandStatus})
	assert.NoError(t, err)
}

func TestDispatchAfterClose(t *testing.T) {
	manager, store, dialer := testManager(t)
	mac := registerMotor(t, store, dialer, "aa:bb:cc:00:00:09", motion.BlindTypePosition)

	manager.Close()

	_, err := manager.Dispatch(context.Background(), mac, models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, ErrSessionClosed)
}
