// Package tailer feeds log lines from a file on disk into the harvest
// service. It stands in for in-process instrumentation when the host
// application writes structured logs to a file instead.
package tailer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"syscall"
	"time"
)

// Recorder is the capture entry point the tailer feeds.
type Recorder interface {
	RecordLogEvent(ctx context.Context, attributes map[string]any)
}

// Tailer polls one file for appended lines, surviving truncation and
// rotation (inode change resets the read offset). Each line becomes one
// log event: JSON objects are used as the attribute map directly, plain
// text lands under a "message" attribute.
type Tailer struct {
	path     string
	poll     time.Duration
	recorder Recorder
}

func New(path string, poll time.Duration, recorder Recorder) *Tailer {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Tailer{
		path:     path,
		poll:     poll,
		recorder: recorder,
	}
}

func (t *Tailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	var offset int64
	var lastInode uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fi, err := os.Stat(t.path)
			if err != nil {
				continue
			}
			if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
				if lastInode == 0 {
					lastInode = stat.Ino
				}
				if stat.Ino != lastInode {
					lastInode = stat.Ino
					offset = 0
				}
			}
			if fi.Size() < offset {
				// Truncated in place.
				offset = 0
			}
			newOffset, err := t.readFromOffset(ctx, offset)
			if err != nil {
				continue
			}
			offset = newOffset
		}
	}
}

func (t *Tailer) readFromOffset(ctx context.Context, offset int64) (int64, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return offset, err
	}

	read := offset
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(scanner.Bytes())) + 1
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.recorder.RecordLogEvent(ctx, parseLine(line))
	}
	if err := scanner.Err(); err != nil {
		return read, err
	}
	return read, nil
}

func parseLine(line string) map[string]any {
	if strings.HasPrefix(line, "{") {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(line), &attrs); err == nil && len(attrs) > 0 {
			return attrs
		}
	}
	return map[string]any{"message": line}
}
