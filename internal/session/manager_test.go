package session_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/mfcctl/internal/bus"
	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/mfc"
	"codeberg.org/mutker/mfcctl/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(controllers int) session.Config {
	return session.Config{
		Adapter:        "sim",
		Controllers:    controllers,
		CycleTime:      time.Millisecond,
		ReceiveTimeout: 2 * time.Millisecond,
		StateTimeout:   10 * time.Millisecond,
		SettleTime:     20 * time.Millisecond,
		StopTimeout:    time.Second,
	}
}

func TestConnectOperational(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2})
	mgr := session.NewManager(master, testConfig(2))
	defer mgr.Disconnect()

	msg, err := mgr.Connect()
	require.NoError(t, err)
	assert.Contains(t, msg, "connected 2 controllers")
	assert.Contains(t, msg, "operational")
	assert.NotContains(t, msg, "not reached")
	assert.Equal(t, session.StateConnected, mgr.State())

	assert.Equal(t, "GF125-01", mgr.ControllerName(0))
	assert.InDelta(t, 30000, mgr.FullScale(0), 0.001)
}

func TestConnectDegraded(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2, MaxState: bus.StateSafeOp})
	mgr := session.NewManager(master, testConfig(2))
	defer mgr.Disconnect()

	msg, err := mgr.Connect()
	require.NoError(t, err, "reaching only safe-operational is a degraded success")
	assert.Contains(t, msg, "operational not reached")
	assert.Contains(t, msg, "safe-operational")
	assert.Equal(t, session.StateConnected, mgr.State())
}

func TestConnectInsufficientDevices(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1})
	mgr := session.NewManager(master, testConfig(3))

	_, err := mgr.Connect()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, session.ErrInsufficientDevices))
	assert.Contains(t, err.Error(), "discovered 1 controllers, need 3")
	assert.Equal(t, session.StateError, mgr.State())
}

func TestBatchDelivery(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2})
	mgr := session.NewManager(master, testConfig(2))
	defer mgr.Disconnect()

	batches := make(chan []*mfc.Sample, 64)
	mgr.OnBatch(func(batch []*mfc.Sample) {
		select {
		case batches <- batch:
		default:
		}
	})

	_, err := mgr.Connect()
	require.NoError(t, err)

	select {
	case batch := <-batches:
		require.Len(t, batch, 2)
		for _, sample := range batch {
			require.NotNil(t, sample)
			assert.InDelta(t, 14.7, sample.Pressure, 0.001)
			assert.InDelta(t, 23.5, sample.Temperature, 0.001)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered by the cyclic task")
	}
}

func TestSetpointDrivesFlow(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1})
	mgr := session.NewManager(master, testConfig(1))
	defer mgr.Disconnect()

	batches := make(chan []*mfc.Sample, 64)
	mgr.OnBatch(func(batch []*mfc.Sample) {
		select {
		case batches <- batch:
		default:
		}
	})

	_, err := mgr.Connect()
	require.NoError(t, err)

	require.NoError(t, mgr.SetSetpoint(0, 10000))
	assert.InDelta(t, 10000, mgr.Setpoint(0), 0.001)

	// The simulated device converges toward the setpoint over cycles.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case batch := <-batches:
			if len(batch) == 1 && batch[0] != nil && batch[0].Flow > 5000 {
				return
			}
		case <-deadline:
			t.Fatal("flow never approached the setpoint")
		}
	}
}

func TestExchangeErrorHook(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2, ExchangeErr: assert.AnError})
	mgr := session.NewManager(master, testConfig(2))
	defer mgr.Disconnect()

	cycleErrs := make(chan error, 64)
	mgr.OnError(func(err error) {
		select {
		case cycleErrs <- err:
		default:
		}
	})

	_, err := mgr.Connect()
	require.NoError(t, err, "per-cycle errors never fail the connect")
	assert.Equal(t, session.StateConnected, mgr.State())

	for i := 0; i < 2; i++ {
		select {
		case cycleErr := <-cycleErrs:
			assert.True(t, errors.HasCode(cycleErr, session.ErrExchangeFailed))
		case <-time.After(2 * time.Second):
			t.Fatal("exchange error not reported")
		}
	}
}

func TestSetSetpointValidation(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2})
	mgr := session.NewManager(master, testConfig(2))
	defer mgr.Disconnect()

	_, err := mgr.Connect()
	require.NoError(t, err)

	require.Error(t, mgr.SetSetpoint(-1, 100))
	require.Error(t, mgr.SetSetpoint(2, 100))

	require.NoError(t, mgr.SetSetpoint(1, 50000))
	assert.InDelta(t, 30000, mgr.Setpoint(1), 0.001, "setpoint clamps to full scale")
}

func TestDisconnectIdempotent(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2})
	mgr := session.NewManager(master, testConfig(2))

	mgr.Disconnect() // never connected

	_, err := mgr.Connect()
	require.NoError(t, err)
	require.NoError(t, mgr.SetSetpoint(0, 5000))

	mgr.Disconnect()
	assert.Equal(t, session.StateDisconnected, mgr.State())
	assert.InDelta(t, 0, mgr.Setpoint(0), 0.001, "drivers are released on disconnect")

	mgr.Disconnect()
	assert.Equal(t, session.StateDisconnected, mgr.State())
}

func TestFullScaleFallbacks(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1, FullScales: []float64{1000}})
	mgr := session.NewManager(master, testConfig(1))
	defer mgr.Disconnect()

	_, err := mgr.Connect()
	require.NoError(t, err)

	assert.InDelta(t, 1000, mgr.FullScale(0), 0.001)
	assert.InDelta(t, mfc.DefaultFullScale, mgr.FullScale(5), 0.001, "out-of-range channel yields the default")
}
