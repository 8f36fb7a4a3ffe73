// SPDX-License-Identifier: MIT

package media

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// progressWatch follows ffmpeg's -progress key=value stream and flags an
// invocation that stops advancing. Without it a wedged encode is
// indistinguishable from a long one until the per-task deadline fires,
// potentially an hour later.
//
// It implements io.Writer so it can sit directly on cmd.Stdout; writes may
// split lines arbitrarily.
type progressWatch struct {
	mu sync.Mutex

	startTimeout time.Duration // budget for the first progress report
	stallTimeout time.Duration // budget between reports after that

	buf       []byte
	lastOutUS int64 // out_time_ms field is microseconds despite the name
	lastSize  int64
	lastBeat  time.Time
	started   bool
	ended     bool

	now func() time.Time
}

func newProgressWatch(startTimeout, stallTimeout time.Duration, now func() time.Time) *progressWatch {
	if now == nil {
		now = time.Now
	}
	return &progressWatch{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		lastBeat:     now(),
		now:          now,
	}
}

// Write consumes a chunk of the -progress stream.
func (w *progressWatch) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := string(w.buf[:idx])
		w.buf = w.buf[idx+1:]
		w.parseLineLocked(line)
	}
}

func (w *progressWatch) parseLineLocked(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key, val = strings.TrimSpace(key), strings.TrimSpace(val)

	switch key {
	case "out_time_ms", "out_time_us":
		if us, err := strconv.ParseInt(val, 10, 64); err == nil && us > w.lastOutUS {
			w.lastOutUS = us
			w.beatLocked()
		}
	case "total_size":
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > w.lastSize {
			w.lastSize = n
			w.beatLocked()
		}
	case "progress":
		if val == "end" {
			w.ended = true
		}
	}
}

func (w *progressWatch) beatLocked() {
	w.lastBeat = w.now()
	w.started = true
}

// check reports an error once the current phase outlived its budget. A
// stream that reached progress=end can never stall; the process is already
// on its way out.
func (w *progressWatch) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ended {
		return nil
	}
	idle := w.now().Sub(w.lastBeat)
	if !w.started {
		if idle > w.startTimeout {
			return fmt.Errorf("no progress within %s of start", w.startTimeout)
		}
		return nil
	}
	if idle > w.stallTimeout {
		return fmt.Errorf("no progress for %s", idle.Round(time.Second))
	}
	return nil
}
