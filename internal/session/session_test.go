package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/internal/transport"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

func testTimings() Timings {
	return Timings{
		IdleTimeout:    200 * time.Millisecond,
		ConnectTimeout: time.Second,
		CommandTimeout: 100 * time.Millisecond,
	}
}

func testDevice(t *testing.T, blindType motion.BlindType, hasSpeed bool) *models.Device {
	t.Helper()
	mac, err := motion.ParseMAC("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	return &models.Device{
		MAC:       mac,
		Name:      "living room",
		BlindType: blindType,
		HasSpeed:  hasSpeed,
	}
}

func testSession(t *testing.T, device *models.Device) (*Session, *transport.SimMotor) {
	t.Helper()
	dialer := transport.NewSimDialer()
	motor := transport.NewSimMotor(device.MAC)
	dialer.AddMotor(motor)

	sess := New(device, dialer, testTimings(), nil)
	t.Cleanup(sess.Close)
	return sess, motor
}

func TestImplicitConnect(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePositionTilt, true))

	require.Equal(t, models.StateDisconnected, sess.State())

	snap, err := sess.Execute(context.Background(), models.Command{Type: models.CommandStatus})
	require.NoError(t, err)

	assert.Equal(t, models.StateConnected, sess.State())
	require.NotNil(t, snap.Position)
	require.NotNil(t, snap.Battery)
	assert.Equal(t, 0, *snap.Position)
	assert.Equal(t, 100, *snap.Battery)
	assert.False(t, snap.AsOf.IsZero())
}

func TestCommandMovesMotor(t *testing.T) {
	sess, motor := testSession(t, testDevice(t, motion.BlindTypePositionTilt, true))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandPosition, Position: 60})
	require.NoError(t, err)
	assert.Equal(t, 60, motor.Position())

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandClose})
	require.NoError(t, err)
	assert.Equal(t, 100, motor.Position())
}

func TestCommandsRunInArrivalOrder(t *testing.T) {
	sess, motor := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	for _, pos := range []int{20, 40, 80} {
		_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandPosition, Position: pos})
		require.NoError(t, err)
	}
	assert.Equal(t, 80, motor.Position())
}

func TestConcurrentExecutesSerializeOnTheWire(t *testing.T) {
	device := testDevice(t, motion.BlindTypePosition, false)
	dialer := transport.NewSimDialer()
	dialer.Latency = 30 * time.Millisecond
	motor := transport.NewSimMotor(device.MAC)
	dialer.AddMotor(motor)

	timings := testTimings()
	timings.IdleTimeout = 5 * time.Second
	timings.CommandTimeout = time.Second
	sess := New(device, dialer, timings, nil)
	t.Cleanup(sess.Close)

	// Staggered launches pin down the arrival order while every call is
	// still in flight concurrently.
	positions := []int{10, 20, 30, 40, 50}
	errs := make([]error, len(positions))
	var wg sync.WaitGroup
	for i, pos := range positions {
		wg.Add(1)
		go func(i, pos int) {
			defer wg.Done()
			_, errs[i] = sess.Execute(context.Background(), models.Command{
				Type:     models.CommandPosition,
				Position: pos,
			})
		}(i, pos)
		time.Sleep(10 * time.Millisecond)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "command %d", i)
	}

	// The motor saw one write per command, in arrival order
	assert.Equal(t, positions, motor.PositionHistory())
	assert.Equal(t, 50, motor.Position())
}

func TestCapabilityValidationBeforeTransport(t *testing.T) {
	// No motor registered: a command that touches the radio would fail with
	// a connection error instead.
	device := testDevice(t, motion.BlindTypePosition, false)
	sess := New(device, transport.NewSimDialer(), testTimings(), nil)
	t.Cleanup(sess.Close)

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandTilt, Tilt: 50})
	assert.ErrorIs(t, err, models.ErrCapability)
	assert.Equal(t, models.StateDisconnected, sess.State())

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandSpeed, Speed: motion.SpeedHigh})
	assert.ErrorIs(t, err, models.ErrCapability)

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandPosition, Position: 150})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, models.StateDisconnected, sess.State())
}

func TestUnknownCommandRejectedBeforeTransport(t *testing.T) {
	// No motor registered: touching the radio would surface a connection
	// error instead of the argument error.
	device := testDevice(t, motion.BlindTypePosition, false)
	sess := New(device, transport.NewSimDialer(), testTimings(), nil)
	t.Cleanup(sess.Close)

	_, err := sess.Execute(context.Background(), models.Command{Type: "GARBAGE"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Equal(t, models.StateDisconnected, sess.State())
}

func TestTiltOnlyProfile(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypeTilt, false))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, models.ErrCapability)

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandTilt, Tilt: 50})
	assert.NoError(t, err)

	// Stop is profile-independent
	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandStop})
	assert.NoError(t, err)
}

func TestConnectFailure(t *testing.T) {
	device := testDevice(t, motion.BlindTypePosition, false)
	sess := New(device, transport.NewSimDialer(), testTimings(), nil)
	t.Cleanup(sess.Close)

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, models.ErrConnectionFailed)
	assert.Equal(t, models.StateDisconnected, sess.State())
}

func TestIdleDisconnect(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
	require.NoError(t, err)
	require.Equal(t, models.StateConnected, sess.State())

	assert.Eventually(t, func() bool {
		return sess.State() == models.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExplicitConnectDuration(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	// A one second window outlives the 200ms default several times over
	_, err := sess.Execute(context.Background(), models.Command{
		Type:     models.CommandConnect,
		Duration: time.Second,
	})
	require.NoError(t, err)

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, models.StateConnected, sess.State())

	assert.Eventually(t, func() bool {
		return sess.State() == models.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCommandKeepsExplicitWindow(t *testing.T) {
	sess, motor := testSession(t, testDevice(t, motion.BlindTypePositionTilt, false))

	_, err := sess.Execute(context.Background(), models.Command{
		Type:     models.CommandConnect,
		Duration: time.Second,
	})
	require.NoError(t, err)

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandTilt, Tilt: 30})
	require.NoError(t, err)
	assert.Empty(t, motor.PositionHistory())

	// The tilt rearmed the explicit one second window, not the 200ms default
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, models.StateConnected, sess.State())

	assert.Eventually(t, func() bool {
		return sess.State() == models.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectWhileConnectedRenewsWindow(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
	require.NoError(t, err)

	// Keep renewing past several default windows
	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
		require.NoError(t, err)
		require.Equal(t, models.StateConnected, sess.State())
	}
}

func TestExplicitDisconnect(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
	require.NoError(t, err)

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandDisconnect})
	require.NoError(t, err)
	assert.Equal(t, models.StateDisconnected, sess.State())

	// Disconnecting an already disconnected session is a no-op
	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandDisconnect})
	assert.NoError(t, err)
}

func TestCommandTimeoutKeepsConnection(t *testing.T) {
	// A long idle window keeps the idle timer out of the picture; the two
	// reply waits alone take longer than the default test window.
	device := testDevice(t, motion.BlindTypePosition, false)
	dialer := transport.NewSimDialer()
	motor := transport.NewSimMotor(device.MAC)
	dialer.AddMotor(motor)

	timings := testTimings()
	timings.IdleTimeout = 5 * time.Second
	sess := New(device, dialer, timings, nil)
	t.Cleanup(sess.Close)

	snapBefore, err := sess.Execute(context.Background(), models.Command{Type: models.CommandStatus})
	require.NoError(t, err)

	motor.SetMute(true)

	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, models.ErrCommandTimeout)

	// The link survives a reply timeout and the cache keeps its last value
	assert.Equal(t, models.StateConnected, sess.State())
	assert.Equal(t, snapBefore.AsOf, sess.Snapshot().AsOf)

	motor.SetMute(false)
	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
	assert.NoError(t, err)
}

func TestLinkLostAndReconnect(t *testing.T) {
	sess, motor := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
	require.NoError(t, err)

	motor.DropLink()

	assert.Eventually(t, func() bool {
		return sess.State() == models.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	// The next command reconnects implicitly
	_, err = sess.Execute(context.Background(), models.Command{Type: models.CommandStatus})
	require.NoError(t, err)
	assert.Equal(t, models.StateConnected, sess.State())
}

func TestDisconnectPreemptsPendingConnect(t *testing.T) {
	device := testDevice(t, motion.BlindTypePosition, false)
	dialer := transport.NewSimDialer()
	dialer.Latency = 300 * time.Millisecond
	dialer.AddMotor(transport.NewSimMotor(device.MAC))

	sess := New(device, dialer, testTimings(), nil)
	t.Cleanup(sess.Close)

	openErr := make(chan error, 1)
	go func() {
		_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
		openErr <- err
	}()

	// Let the open reach the dial before requesting the disconnect
	require.Eventually(t, func() bool {
		return sess.State() == models.StateConnecting
	}, time.Second, 5*time.Millisecond)

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandDisconnect})
	require.NoError(t, err)

	assert.ErrorIs(t, <-openErr, models.ErrConnectionFailed)
	assert.Equal(t, models.StateDisconnected, sess.State())
}

func TestEventsOnStateAndStatusChanges(t *testing.T) {
	device := testDevice(t, motion.BlindTypePosition, false)
	dialer := transport.NewSimDialer()
	dialer.AddMotor(transport.NewSimMotor(device.MAC))

	events := make(chan models.StatusEvent, 64)
	sess := New(device, dialer, testTimings(), func(e models.StatusEvent) {
		select {
		case events <- e:
		default:
		}
	})
	t.Cleanup(sess.Close)

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandConnect})
	require.NoError(t, err)

	var states []models.ConnectionState
	deadline := time.After(time.Second)
	for len(states) < 2 {
		select {
		case e := <-events:
			require.Equal(t, device.MAC, e.MAC)
			states = append(states, e.State)
		case <-deadline:
			t.Fatalf("expected state transitions, got %v", states)
		}
	}
	assert.Equal(t, models.StateConnecting, states[0])
	assert.Equal(t, models.StateConnected, states[1])
}

func TestExecuteAfterClose(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))
	sess.Close()

	_, err := sess.Execute(context.Background(), models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestExecuteRespectsContext(t *testing.T) {
	sess, _ := testSession(t, testDevice(t, motion.BlindTypePosition, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sess.Execute(ctx, models.Command{Type: models.CommandOpen})
	assert.ErrorIs(t, err, context.Canceled)
}
