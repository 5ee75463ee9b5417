package session

import (
	"time"

	"codeberg.org/mutker/mfcctl/internal/errors"
	"codeberg.org/mutker/mfcctl/internal/logger"
	"codeberg.org/mutker/mfcctl/internal/mfc"
)

// runCyclic is the scheduler: a dedicated goroutine ticking at the
// cycle period until the stop channel closes. The stop signal is
// checked once per cycle; an in-flight exchange is never interrupted.
func (m *Manager) runCyclic(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CycleTime)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.cycle(); err != nil {
				// One failed exchange never stops the loop; the next
				// period is the retry.
				m.reportError(err)
			}
		}
	}
}

// cycle performs one exchange round: push every channel's setpoint into
// its output frame, one bus transmit+receive, decode every input frame
// and publish the batch in a single update.
func (m *Manager) cycle() error {
	errFactory := errors.New()

	m.mu.Lock()
	drivers := m.drivers
	m.mu.Unlock()

	for _, d := range drivers {
		if err := d.WriteSetpoint(d.Setpoint()); err != nil {
			return err
		}
	}

	if err := m.master.Exchange(m.cfg.ReceiveTimeout); err != nil {
		return errFactory.Wrap(ErrExchangeFailed, err)
	}

	batch := make([]*mfc.Sample, len(drivers))
	for i, d := range drivers {
		batch[i] = d.ReadSample() // nil when this cycle produced no usable frame
	}

	if m.onBatch != nil {
		m.onBatch(batch)
	}

	return nil
}

func (m *Manager) reportError(err error) {
	if m.onError != nil {
		m.onError(err)
		return
	}

	logger.Warn().Err(err).Msg("Cyclic exchange error")
}
