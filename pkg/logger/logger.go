package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var dedup = &deduplicator{
	flushDelay: 2 * time.Second,
	printf:     log.Printf,
}

// deduplicator collapses identical consecutive lines into "msg (N)" once
// the line stops repeating for flushDelay.
type deduplicator struct {
	mu         sync.Mutex
	lastMsg    string
	count      int
	flushDelay time.Duration
	timer      *time.Timer
	printf     func(format string, args ...any)
}

func (d *deduplicator) flush() {
	if d.count == 0 {
		return
	}
	if d.count == 1 {
		d.printf("%s", d.lastMsg)
	} else {
		d.printf("%s (%d)", d.lastMsg, d.count)
	}
	d.count = 0
	d.lastMsg = ""
}

func (d *deduplicator) schedule() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.flushDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.flush()
	})
}

func (d *deduplicator) add(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if msg == d.lastMsg {
		d.count++
		d.schedule()
		return
	}

	d.flush()
	d.lastMsg = msg
	d.count = 1
	d.schedule()
}

func Dedup(format string, args ...any) {
	dedup.add(fmt.Sprintf(format, args...))
}

// Source logs a line prefixed with the upper-cased source name, e.g. "[AMAZON] ...".
func Source(source, format string, args ...any) {
	log.Printf("[%s] %s", strings.ToUpper(source), fmt.Sprintf(format, args...))
}

// SourceDedup is Source routed through the deduplicator, for lines that
// repeat on every request such as a source that is blocked.
func SourceDedup(source, format string, args ...any) {
	dedup.add(fmt.Sprintf("[%s] %s", strings.ToUpper(source), fmt.Sprintf(format, args...)))
}
