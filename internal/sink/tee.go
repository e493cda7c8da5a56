package sink

import (
	"errors"

	"minicorr/internal/poller"
)

// Tee fans samples out to several sinks. Every sink sees every sample even
// when an earlier one fails; the failures are joined.
type Tee []poller.Sink

func (t Tee) Record(s poller.Sample) error {
	var errs []error
	for _, sk := range t {
		if err := sk.Record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for _, sk := range t {
		if err := sk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to poller.Sink with a no-op Close.
type Func func(poller.Sample) error

func (f Func) Record(s poller.Sample) error { return f(s) }

func (Func) Close() error { return nil }
