package recorder_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/mfc"
	"codeberg.org/mutker/mfcctl/internal/recorder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return strings.Count(string(data), "\n")
}

func testBatch() []*mfc.Sample {
	return []*mfc.Sample{
		{Timestamp: 1, Flow: 1500.5, Pressure: 14.6959, Temperature: 23.5, Setpoint: 2000},
		{Timestamp: 1, Flow: 0, Pressure: 14.7, Temperature: 24.1, Setpoint: 0},
	}
}

func TestStartWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := recorder.New(100)

	require.NoError(t, rec.Start(path, 2))
	assert.True(t, rec.IsRecording())
	assert.Equal(t, path, rec.Path())
	rec.Stop()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	header := rows[0]
	require.Len(t, header, 2+4*2)
	assert.Equal(t, "Timestamp", header[0])
	assert.Equal(t, "DateTime", header[1])
	assert.Equal(t, "Controller1_Flow_SCCM", header[2])
	assert.Equal(t, "Controller1_Pressure_psi", header[3])
	assert.Equal(t, "Controller1_Temperature_C", header[4])
	assert.Equal(t, "Controller1_Setpoint_SCCM", header[5])
	assert.Equal(t, "Controller2_Flow_SCCM", header[6])
}

func TestRowFormatting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := recorder.New(100)

	require.NoError(t, rec.Start(path, 2))
	rec.Record(testBatch())
	rec.Stop()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	require.Len(t, row, 10)
	assert.Equal(t, "1500.50", row[2])
	assert.Equal(t, "14.6959", row[3])
	assert.Equal(t, "23.50", row[4])
	assert.Equal(t, "2000.00", row[5])
	assert.Equal(t, "0.00", row[6])
}

func TestMissingChannelsBecomeEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := recorder.New(100)

	require.NoError(t, rec.Start(path, 2))
	rec.Record([]*mfc.Sample{nil, {Flow: 10, Pressure: 14.7, Temperature: 23.5, Setpoint: 10}})
	rec.Stop()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	row := rows[1]
	assert.Equal(t, "", row[2])
	assert.Equal(t, "", row[3])
	assert.Equal(t, "", row[4])
	assert.Equal(t, "", row[5])
	assert.Equal(t, "10.00", row[6])
}

func TestBufferedFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := recorder.New(100)

	require.NoError(t, rec.Start(path, 2))

	// Header is written immediately; rows sit in the buffer until full.
	for i := 0; i < 99; i++ {
		rec.Record(testBatch())
	}
	assert.Equal(t, 1, countLines(t, path))

	rec.Record(testBatch())
	assert.Equal(t, 101, countLines(t, path))

	for i := 0; i < 150; i++ {
		rec.Record(testBatch())
	}
	assert.Equal(t, 201, countLines(t, path))

	rec.Stop()
	assert.Equal(t, 251, countLines(t, path), "Stop flushes the partial buffer")
}

func TestStartWhileRecording(t *testing.T) {
	dir := t.TempDir()
	rec := recorder.New(100)

	require.NoError(t, rec.Start(filepath.Join(dir, "a.csv"), 1))
	defer rec.Stop()

	err := rec.Start(filepath.Join(dir, "b.csv"), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, recorder.ErrAlreadyRecording))
	assert.Equal(t, filepath.Join(dir, "a.csv"), rec.Path(), "active session stays untouched")
}

func TestStartOpenFailure(t *testing.T) {
	rec := recorder.New(100)

	err := rec.Start(filepath.Join(t.TempDir(), "missing", "run.csv"), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, recorder.ErrOpenFailed))
	assert.False(t, rec.IsRecording())
}

func TestStopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	rec := recorder.New(100)

	rec.Stop() // never started

	require.NoError(t, rec.Start(path, 1))
	rec.Record([]*mfc.Sample{{Flow: 1, Pressure: 14.7, Temperature: 23.5}})
	rec.Stop()
	rec.Stop()

	assert.Equal(t, 2, countLines(t, path))
	assert.False(t, rec.IsRecording())
}

func TestRecordWhenInactiveIsNoOp(t *testing.T) {
	rec := recorder.New(100)
	rec.Record(testBatch())
	assert.False(t, rec.IsRecording())
}
