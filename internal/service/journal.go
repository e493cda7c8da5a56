package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"minicorr/internal/logger"
	"minicorr/internal/models"
	"minicorr/internal/repository"
	"minicorr/internal/sink"
)

const journalWriteTimeout = 2 * time.Second

// Journal is the single event path: every device event goes to the console
// logger, to the event log file while one is open, and to the event table.
// A failing file is closed and dropped; the other outputs keep working.
type Journal struct {
	log  *logger.Logger
	repo repository.EventRepo
	dir  string
	now  func() time.Time

	mu   sync.Mutex
	file *sink.EventFile
}

func NewJournal(log *logger.Logger, repo repository.EventRepo, dir string) *Journal {
	if log == nil {
		log = logger.Nop()
	}
	return &Journal{log: log, repo: repo, dir: dir, now: time.Now}
}

// Record writes one event. It never fails; output errors are logged.
func (j *Journal) Record(ctx context.Context, typ, msg string, meta any) {
	now := j.now()
	j.echo(typ, msg, meta)
	j.writeFile(ctx, now, msg)
	j.store(ctx, models.DeviceEvent{OccurredAt: now, Type: typ, Message: msg, Metadata: meta})
}

func (j *Journal) echo(typ, msg string, meta any) {
	kv := []interface{}{"event", strings.ToLower(typ)}
	if meta != nil {
		kv = append(kv, "meta", meta)
	}
	if typ == models.EventError {
		j.log.Warnw(msg, kv...)
		return
	}
	j.log.Infow(msg, kv...)
}

func (j *Journal) writeFile(ctx context.Context, now time.Time, msg string) {
	j.mu.Lock()
	f := j.file
	if f == nil {
		j.mu.Unlock()
		return
	}
	err := f.Write(sink.FormatEvent(now, msg))
	if err == nil {
		j.mu.Unlock()
		return
	}
	_ = f.Close()
	j.file = nil
	j.mu.Unlock()

	j.log.Errorw("event_log_write_failed", "path", f.Path(), "err", err)
	failure := "event log write error: " + err.Error()
	j.echo(models.EventLogging, failure, nil)
	j.store(ctx, models.DeviceEvent{OccurredAt: j.now(), Type: models.EventLogging, Message: failure})
}

func (j *Journal) store(ctx context.Context, ev models.DeviceEvent) {
	if j.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
	defer cancel()
	if err := j.repo.Append(ctx, ev); err != nil {
		j.log.Errorw("event_store_failed", "err", err, "type", ev.Type)
	}
}

// StartFile opens a new event log file. Starting twice keeps the open file.
func (j *Journal) StartFile(ctx context.Context) (string, error) {
	j.mu.Lock()
	if j.file != nil {
		path := j.file.Path()
		j.mu.Unlock()
		return path, nil
	}
	f, err := sink.OpenEventFile(j.dir, j.now())
	if err != nil {
		j.mu.Unlock()
		j.Record(ctx, models.EventError, "error creating log file: "+err.Error(), nil)
		return "", err
	}
	j.file = f
	j.mu.Unlock()

	j.Record(ctx, models.EventLogging, "started event log in "+f.Path(), nil)
	return f.Path(), nil
}

// StopFile closes the event log file, if any.
func (j *Journal) StopFile(ctx context.Context) error {
	j.mu.Lock()
	f := j.file
	j.file = nil
	j.mu.Unlock()
	if f == nil {
		return nil
	}

	if err := f.Close(); err != nil {
		j.Record(ctx, models.EventError, "error closing log file: "+err.Error(), nil)
		return err
	}
	j.Record(ctx, models.EventLogging, "event log stopped", nil)
	return nil
}

func (j *Journal) Status() LoggingStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return LoggingStatus{}
	}
	return LoggingStatus{Active: true, Path: j.file.Path()}
}
