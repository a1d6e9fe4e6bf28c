// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package logtail

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
	"github.com/elastic/mysql-configurator/pkg/version"
)

const defaultPollInterval = 500 * time.Millisecond

// Tailer reads the lines the server appends to its error log.
type Tailer struct {
	path         string
	log          *logger.Logger
	pollInterval time.Duration
}

// Option customizes a Tailer.
type Option func(t *Tailer)

// WithPollInterval sets how often the file is checked when no change
// notification arrives.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		t.pollInterval = d
	}
}

// New creates a Tailer for the error log at path.
func New(log *logger.Logger, path string, opts ...Option) *Tailer {
	t := &Tailer{
		path:         path,
		log:          log.Named("logtail"),
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Path returns the tailed file.
func (t *Tailer) Path() string {
	return t.path
}

// Watch starts reading in the background. Only bytes appended after Watch
// returns are considered. The watch runs until m finishes, ctx is done or
// Stop is called.
func (t *Tailer) Watch(ctx context.Context, m Matcher) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	offset := int64(0)
	if info, err := os.Stat(t.path); err == nil {
		offset = info.Size()
	}

	go t.run(ctx, w, m, offset)
	return w
}

// ParseForReadyMarker waits up to timeout for the version specific ready
// for connections line. A timeout returns false without an error.
func (t *Tailer) ParseForReadyMarker(ctx context.Context, v version.ServerVersion, timeout time.Duration) bool {
	w := t.Watch(ctx, ReadyMatcher(v))
	defer w.Stop()
	res, err := w.WaitTimeout(ctx, timeout)
	return err == nil && res.Ready
}

// UpgradeResult is the outcome of a self-contained upgrade.
type UpgradeResult struct {
	Finished bool
	Failed   bool
}

// ParseForUpgradeMarkers waits up to timeout for the upgrade to finish or
// fail. The bool is false when neither was observed in time.
func (t *Tailer) ParseForUpgradeMarkers(ctx context.Context, v version.ServerVersion, timeout time.Duration) (UpgradeResult, bool) {
	w := t.Watch(ctx, UpgradeMatcher(v))
	defer w.Stop()
	res, err := w.WaitTimeout(ctx, timeout)
	if err != nil {
		return UpgradeResult{}, false
	}
	return UpgradeResult{Finished: res.UpgradeFinished, Failed: res.UpgradeFailed}, true
}

func (t *Tailer) run(ctx context.Context, w *Watch, m Matcher, offset int64) {
	defer close(w.done)

	var wake <-chan fsnotify.Event
	var wakeErr <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Debugw("file notifications unavailable, polling the error log", "error.message", err)
	} else {
		defer watcher.Close()
		// the directory is watched so a log that is created or rotated later is noticed
		if err := watcher.Add(filepath.Dir(t.path)); err != nil {
			t.log.Debugw("cannot watch error log directory, polling", "path", t.path, "error.message", err)
		} else {
			wake = watcher.Events
			wakeErr = watcher.Errors
		}
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	r := &reader{path: t.path, offset: offset}
	for {
		for _, text := range r.readLines(t.log) {
			line := ParseLine(text)
			if w.observe(line, m) {
				return
			}
		}

		select {
		case <-ctx.Done():
			w.finish(func(res *Result) { res.TimedOut = true })
			return
		case e, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Clean(e.Name) != filepath.Clean(t.path) {
				continue
			}
		case err, ok := <-wakeErr:
			if !ok {
				wakeErr = nil
				continue
			}
			t.log.Debugw("error log watch returned error", "error.message", err)
		case <-ticker.C:
		}
	}
}

// reader keeps the read position and the unterminated tail of the file.
type reader struct {
	path    string
	offset  int64
	pending []byte
}

func (r *reader) readLines(log *logger.Logger) []string {
	f, err := os.Open(r.path)
	if err != nil {
		// not created yet
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	if info.Size() < r.offset {
		log.Debugw("error log was truncated, reading from the start", "path", r.path)
		r.offset = 0
		r.pending = nil
	}
	if info.Size() == r.offset {
		return nil
	}

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil
	}
	chunk, err := io.ReadAll(io.LimitReader(f, info.Size()-r.offset))
	if err != nil {
		log.Debugw("failed reading error log", "path", r.path, "error.message", err)
	}
	r.offset += int64(len(chunk))

	data := append(r.pending, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(data[:idx]))
		data = data[idx+1:]
	}
	r.pending = append([]byte(nil), data...)
	return lines
}

// Watch is the handle of a running tail, joined with Wait.
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}

	mx     sync.Mutex
	lines  []Line
	result Result
}

// Wait blocks until the watch ended or ctx is done. Cancelling ctx does not
// stop the watch, use Stop for that.
func (w *Watch) Wait(ctx context.Context) (Result, error) {
	select {
	case <-w.done:
		return w.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by timeout, zero means no bound.
func (w *Watch) WaitTimeout(ctx context.Context, timeout time.Duration) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return w.Wait(ctx)
}

// Stop ends the watch and waits for the reader to exit.
func (w *Watch) Stop() {
	w.cancel()
	<-w.done
}

// Done is closed when the watch ended.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Result returns the outcome observed so far.
func (w *Watch) Result() Result {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.result
}

// Lines returns every line read so far.
func (w *Watch) Lines() []Line {
	w.mx.Lock()
	defer w.mx.Unlock()
	return append([]Line(nil), w.lines...)
}

// ErrorLines returns the lines tagged as errors.
func (w *Watch) ErrorLines() []Line {
	w.mx.Lock()
	defer w.mx.Unlock()
	var out []Line
	for _, l := range w.lines {
		if l.Severity == SeverityError {
			out = append(out, l)
		}
	}
	return out
}

func (w *Watch) observe(line Line, m Matcher) bool {
	w.mx.Lock()
	defer w.mx.Unlock()
	w.lines = append(w.lines, line)
	return m(line, &w.result)
}

func (w *Watch) finish(fn func(res *Result)) {
	w.mx.Lock()
	defer w.mx.Unlock()
	fn(&w.result)
}
