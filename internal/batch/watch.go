// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mediafab/vidforge/internal/fault"
	"github.com/mediafab/vidforge/internal/log"
	"github.com/mediafab/vidforge/internal/queue"
)

// watchSettle batches a burst of dropped scripts into one drain and gives a
// slow writer time to finish the file before the pipeline reads it.
const watchSettle = 500 * time.Millisecond

// Watch drains the queue, then keeps watching dir for new ".txt" scripts,
// enqueueing and draining as they arrive, until ctx is cancelled or Shutdown
// is called. The merged result covers every drain.
func (p *Processor) Watch(ctx context.Context, dir string) (*Result, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fault.Wrap(fault.KindUnknown, "batch.watch", err)
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err := watcher.Add(dir); err != nil {
		return nil, fault.NotFound("batch.watch", dir)
	}

	start := time.Now()
	total := &Result{}
	drain := func() error {
		res, err := p.Process(ctx)
		if err != nil {
			return err
		}
		total.merge(res)
		return nil
	}
	if err := drain(); err != nil {
		return nil, err
	}

	p.logger.Info().Str(log.FieldPath, dir).Msg("watching for new scripts")

	settle := time.NewTimer(watchSettle)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()
	enqueued := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			total.summarize(time.Since(start))
			return total, nil
		case <-p.shutdown:
			total.summarize(time.Since(start))
			return total, nil
		case <-settle.C:
			if err := drain(); err != nil {
				return total, err
			}
		case event, ok := <-watcher.Events:
			if !ok {
				total.summarize(time.Since(start))
				return total, nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if p.enqueueScript(event.Name, enqueued) {
				settle.Reset(watchSettle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				total.summarize(time.Since(start))
				return total, nil
			}
			p.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// enqueueScript adds a task for path if it is a readable non-empty ".txt"
// not seen before. A Create event often fires before the content is flushed;
// the follow-up Write event retries the size check.
func (p *Processor) enqueueScript(path string, enqueued map[string]bool) bool {
	if !strings.EqualFold(filepath.Ext(path), ".txt") || enqueued[path] {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return false
	}
	enqueued[path] = true

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	task := queue.NewTask(title)
	task.ScriptPath = path
	if err := p.store.Add(task); err != nil {
		p.logger.Warn().Err(err).Str(log.FieldPath, path).Msg("script not enqueued")
		return false
	}
	p.logger.Info().
		Str(log.FieldTaskID, task.ID).
		Str(log.FieldPath, path).
		Msg("script enqueued")
	return true
}
