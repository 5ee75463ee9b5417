package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/logger"
	"codeberg.org/mutker/mfcctl/internal/mfc"
)

const defaultBufferRows = 100

// Recorder writes telemetry snapshots to a CSV file. Rows are buffered
// in memory and flushed when the buffer fills or on Stop. Recording is
// best-effort telemetry, so mid-session write errors are swallowed
// rather than propagated into the control path.
type Recorder struct {
	mu        sync.Mutex
	bufferCap int
	file      *os.File
	writer    *csv.Writer
	buffer    [][]string
	recording bool
	path      string
	channels  int
}

func New(bufferRows int) *Recorder {
	if bufferRows <= 0 {
		bufferRows = defaultBufferRows
	}

	return &Recorder{bufferCap: bufferRows}
}

// Start opens a fresh destination and writes the header row. Fails if a
// session is already active or the destination cannot be opened; in
// both cases the recorder stays inactive (or untouched).
func (r *Recorder) Start(path string, channels int) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return errFactory.WithData(ErrAlreadyRecording, r.path)
	}

	file, err := os.Create(path)
	if err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}

	writer := csv.NewWriter(file)

	header := []string{"Timestamp", "DateTime"}
	for i := 0; i < channels; i++ {
		header = append(header,
			fmt.Sprintf("Controller%d_Flow_SCCM", i+1),
			fmt.Sprintf("Controller%d_Pressure_psi", i+1),
			fmt.Sprintf("Controller%d_Temperature_C", i+1),
			fmt.Sprintf("Controller%d_Setpoint_SCCM", i+1),
		)
	}

	if err := writer.Write(header); err != nil {
		file.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	r.file = file
	r.writer = writer
	r.buffer = r.buffer[:0]
	r.path = path
	r.channels = channels
	r.recording = true

	return nil
}

// Record formats one row from a snapshot batch and buffers it. Channels
// without data become empty fields. A full buffer is flushed inline.
func (r *Recorder) Record(batch []*mfc.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}

	now := time.Now()
	row := make([]string, 0, 2+4*r.channels)
	row = append(row,
		strconv.FormatFloat(float64(now.UnixNano())/float64(time.Second), 'f', 3, 64),
		now.Format("2006-01-02 15:04:05.000"),
	)

	for i := 0; i < r.channels; i++ {
		var sample *mfc.Sample
		if i < len(batch) {
			sample = batch[i]
		}
		if sample == nil {
			row = append(row, "", "", "", "")
			continue
		}
		row = append(row,
			fmt.Sprintf("%.2f", sample.Flow),
			fmt.Sprintf("%.4f", sample.Pressure),
			fmt.Sprintf("%.2f", sample.Temperature),
			fmt.Sprintf("%.2f", sample.Setpoint),
		)
	}

	r.buffer = append(r.buffer, row)
	if len(r.buffer) >= r.bufferCap {
		r.flushLocked()
	}
}

// Stop flushes any buffered rows and closes the destination. Safe to
// call repeatedly and when not recording.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return
	}

	r.flushLocked()

	if err := r.file.Close(); err != nil {
		logger.Warn().Err(err).Msgf("Failed to close recording %s", r.path)
	}

	r.file = nil
	r.writer = nil
	r.recording = false
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.recording
}

// Path returns the destination of the current (or last) session.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.path
}

func (r *Recorder) flushLocked() {
	if r.writer == nil || len(r.buffer) == 0 {
		return
	}

	for _, row := range r.buffer {
		if err := r.writer.Write(row); err != nil {
			logger.Debug().Err(err).Msg("Dropped recording row")
		}
	}
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		logger.Warn().Err(err).Msgf("Failed to flush recording %s", r.path)
	}

	r.buffer = r.buffer[:0]
}
