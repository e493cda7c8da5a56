package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"minicorr/internal/models"
	"minicorr/internal/protocol"
)

// fakeEventRepo is a minimal stub that satisfies repository.EventRepo.
type fakeEventRepo struct {
	mu sync.Mutex

	gotFrom time.Time
	gotTo   time.Time
	gotType string

	events    []models.DeviceEvent
	err       error
	appendErr error

	appended []models.DeviceEvent
	calls    int
}

func (f *fakeEventRepo) List(_ context.Context, from, to time.Time, typ string) ([]models.DeviceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotFrom, f.gotTo, f.gotType = from, to, typ
	return f.events, f.err
}

func (f *fakeEventRepo) Append(_ context.Context, e models.DeviceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return f.appendErr
}

func (f *fakeEventRepo) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.appended))
	for _, e := range f.appended {
		out = append(out, e.Message)
	}
	return out
}

func (f *fakeEventRepo) ofType(typ string) []models.DeviceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DeviceEvent
	for _, e := range f.appended {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeSampleRepo struct {
	mu       sync.Mutex
	inserted []models.TemperatureSample
	err      error

	gotFrom, gotTo time.Time
	gotLimit       int
}

func (f *fakeSampleRepo) Insert(_ context.Context, s models.TemperatureSample) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, s)
	return int64(len(f.inserted)), f.err
}

func (f *fakeSampleRepo) List(_ context.Context, from, to time.Time, limit int) ([]models.TemperatureSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotFrom, f.gotTo, f.gotLimit = from, to, limit
	return f.inserted, f.err
}

func (f *fakeSampleRepo) all() []models.TemperatureSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.TemperatureSample, len(f.inserted))
	copy(out, f.inserted)
	return out
}

type fakeStateRepo struct {
	mu     sync.Mutex
	saved  []models.DeviceState
	loaded models.DeviceState
	err    error
}

func (f *fakeStateRepo) Save(_ context.Context, s models.DeviceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, s)
	return f.err
}

func (f *fakeStateRepo) Load(context.Context) (models.DeviceState, error) {
	return f.loaded, f.err
}

func (f *fakeStateRepo) last() models.DeviceState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return models.DeviceState{}
	}
	return f.saved[len(f.saved)-1]
}

// fakeClient mimics protocol.Client: replies come from a map, not
// connected means the sentinel text and no call is recorded.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	openErr   error
	welcome   string
	replies   map[protocol.Code]string
	dropOn    protocol.Code
	sent      []string
}

func (c *fakeClient) Open(_ context.Context, _ string, _ int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		c.connected = false
		return "", c.openErr
	}
	c.connected = true
	return c.welcome, nil
}

func (c *fakeClient) SendCommand(code protocol.Code, args ...string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return protocol.NotConnected
	}
	c.sent = append(c.sent, protocol.NewCommand(code, args...).Line())
	if c.dropOn != 0 && code == c.dropOn {
		c.connected = false
		return protocol.ErrorText(errors.New("connection reset by peer"))
	}
	if r, ok := c.replies[code]; ok {
		return r
	}
	return "OK"
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}
