package bus_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/mfcctl/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFactory(t *testing.T) {
	master, err := bus.Open("sim", 2)
	require.NoError(t, err)
	require.NotNil(t, master)

	_, err = bus.Open("eth0", 2)
	require.Error(t, err, "native adapters are injected, never built in-process")
}

func TestSimBringUp(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 2})

	require.NoError(t, master.Open("sim"))
	require.Error(t, master.Open("sim"), "double open is rejected")

	count, err := master.ConfigInit()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	slaves := master.Slaves()
	require.Len(t, slaves, 2)
	assert.Equal(t, "GF125-01", slaves[0].Name())
	assert.Equal(t, "GF125-02", slaves[1].Name())

	require.NoError(t, master.ConfigMap())
	require.NoError(t, master.ConfigDC())

	state, err := master.StateCheck(bus.StateOp, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, bus.StateOp, state)

	require.NoError(t, master.Close())
}

func TestSimRequiresOpen(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1})

	_, err := master.ConfigInit()
	require.Error(t, err)

	require.Error(t, master.Exchange(time.Millisecond))
}

func TestSimStateCap(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1, MaxState: bus.StateSafeOp})
	require.NoError(t, master.Open("sim"))
	_, err := master.ConfigInit()
	require.NoError(t, err)

	require.NoError(t, master.RequestState(bus.StateOp))

	state, err := master.StateCheck(bus.StateOp, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, bus.StateSafeOp, state, "the segment never reports past its cap")
}

func TestSimSDORead(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1, FullScales: []float64{1000}})
	require.NoError(t, master.Open("sim"))
	_, err := master.ConfigInit()
	require.NoError(t, err)

	slave := master.Slaves()[0]

	data, err := slave.SDORead(0x2103, 0x00, 4)
	require.NoError(t, err)
	require.Len(t, data, 4)
	scale := math.Float32frombits(binary.LittleEndian.Uint32(data))
	assert.InDelta(t, 1000, scale, 0.001)

	_, err = slave.SDORead(0x1000, 0x00, 4)
	require.Error(t, err, "only the full-scale object is served")
}

func TestSimSDOFailInjection(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1, SDOFails: true})
	require.NoError(t, master.Open("sim"))
	_, err := master.ConfigInit()
	require.NoError(t, err)

	_, err = master.Slaves()[0].SDORead(0x2103, 0x00, 4)
	require.Error(t, err)
}

func TestSimFlowConvergence(t *testing.T) {
	master := bus.NewSimMaster(bus.SimConfig{Slaves: 1})
	require.NoError(t, master.Open("sim"))
	_, err := master.ConfigInit()
	require.NoError(t, err)

	slave := master.Slaves()[0]

	// Command half scale and run a few exchanges.
	frame := make([]byte, 13)
	binary.LittleEndian.PutUint32(frame[0:4], math.Float32bits(15000))
	require.NoError(t, slave.SetOutput(frame))

	var previous float64
	for i := 0; i < 20; i++ {
		require.NoError(t, master.Exchange(time.Millisecond))

		input := slave.Input()
		require.Len(t, input, 13)
		flowRaw := float64(math.Float32frombits(binary.LittleEndian.Uint32(input[1:5])))
		assert.GreaterOrEqual(t, flowRaw, previous, "flow moves monotonically toward the setpoint")
		previous = flowRaw
	}

	// 20 cycles of a 0.2 first-order response get close to 50% of scale.
	assert.Greater(t, previous, 4500.0)
	assert.LessOrEqual(t, previous, 5000.0)
}
