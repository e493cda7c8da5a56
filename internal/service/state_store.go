package service

import (
	"context"
	"time"

	"minicorr/internal/controller"
	"minicorr/internal/logger"
	"minicorr/internal/models"
	"minicorr/internal/poller"
	"minicorr/internal/repository"
)

const stateWriteTimeout = 2 * time.Second

// stateStore persists the controller view after each change so the fan mode
// and thresholds survive a restart.
type stateStore struct {
	repo    repository.StateRepo
	state   *controller.State
	log     *logger.Logger
	session func() poller.PollingSession
	logging func() LoggingStatus
}

func (s *stateStore) snapshot() models.DeviceState {
	snap := s.state.Snapshot()
	out := models.DeviceState{
		ID:           1,
		Host:         snap.Host,
		Port:         snap.Port,
		Connected:    snap.Connected,
		FanMode:      string(snap.FanMode),
		TemperatureC: snap.TemperatureC,
		UpdatedAt:    snap.UpdatedAt,
	}
	if snap.Thresholds != nil {
		lo, hi := snap.Thresholds.Low, snap.Thresholds.High
		out.ThresholdLow, out.ThresholdHigh = &lo, &hi
	}
	if s.session != nil {
		sess := s.session()
		out.Monitoring = sess.Active
		out.IntervalSeconds = int(sess.Interval / time.Second)
	}
	if s.logging != nil {
		out.Logging = s.logging().Active
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now()
	}
	return out
}

func (s *stateStore) save(ctx context.Context) {
	if s == nil || s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, s.snapshot()); err != nil {
		s.log.Errorw("device_state_save_failed", "err", err)
	}
}

// restore seeds the controller from the last saved row. Connection status is
// not restored; a session never outlives the process.
func (s *stateStore) restore(ctx context.Context) error {
	if s == nil || s.repo == nil {
		return nil
	}
	saved, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	if saved.ID == 0 {
		return nil
	}
	var th *controller.ThresholdPair
	if saved.ThresholdLow != nil && saved.ThresholdHigh != nil {
		th = &controller.ThresholdPair{Low: *saved.ThresholdLow, High: *saved.ThresholdHigh}
	}
	mode, err := controller.ParseFanMode(saved.FanMode)
	if err != nil {
		mode = controller.FanAuto
	}
	s.state.Restore(mode, th)
	return nil
}
