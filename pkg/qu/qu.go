// Package qu provides struct{} signalling channels with optional creation
// site tracking, for hunting leaked or double-closed quit channels.
package qu

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"go.uber.org/atomic"
)

var log, _ = slog.New(os.Stderr)

// C is your basic empty struct signalling channel.
type C chan struct{}

var (
	mx         sync.Mutex
	created    []C
	createdLoc []string
	logEnabled = atomic.NewBool(false)
)

// SetLogging switches on and off the channel logging.
func SetLogging(on bool) { logEnabled.Store(on) }

func l(a ...interface{}) {
	if logEnabled.Load() {
		log.D.Ln(a...)
	}
}

// T creates an unbuffered chan struct{} for trigger and quit signalling.
func T() C {
	mx.Lock()
	defer mx.Unlock()
	loc := fmt.Sprintf("chan from %s", slog.GetLoc(2))
	l("created", loc)
	o := make(C)
	created = append(created, o)
	createdLoc = append(createdLoc, loc)
	return o
}

// Ts creates a buffered chan struct{}, for signalling that must not block
// the sender.
func Ts(n int) C {
	mx.Lock()
	defer mx.Unlock()
	loc := fmt.Sprintf("buffered chan (%d) from %s", n, slog.GetLoc(2))
	l("created", loc)
	o := make(C, n)
	created = append(created, o)
	createdLoc = append(createdLoc, loc)
	return o
}

// Q closes the channel, which makes it emit a nil every time it is
// selected. Closing twice is a no-op.
func (c C) Q() {
	if !c.IsClosed() {
		l("closing", getLocForChan(c))
		close(c)
	}
}

// Signal sends struct{}{} on the channel, a momentary switch.
func (c C) Signal() {
	l("signalling", getLocForChan(c))
	if !c.IsClosed() {
		c <- struct{}{}
	}
}

// Wait should be placed with a `<-` in a select case in addition to the
// channel variable name.
func (c C) Wait() <-chan struct{} { return c }

// IsClosed tests whether the channel has been closed, to avoid a panic
// from closing or signalling on it.
func (c C) IsClosed() (o bool) {
	if c == nil {
		return true
	}
	select {
	case <-c:
		o = true
	default:
	}
	return
}

func getLocForChan(c C) (s string) {
	s = "not found"
	mx.Lock()
	for i := range created {
		if created[i] == c {
			s = createdLoc[i]
			break
		}
	}
	mx.Unlock()
	return
}

// periodically drop closed channels from the registry
func init() {
	go func() {
		for {
			<-time.After(time.Minute)
			mx.Lock()
			var c []C
			var locs []string
			for i := range created {
				if !created[i].IsClosed() {
					c = append(c, created[i])
					locs = append(locs, createdLoc[i])
				}
			}
			created = c
			createdLoc = locs
			mx.Unlock()
		}
	}()
}

// OpenChanCount returns the number of registered channels still open.
func OpenChanCount() (o int) {
	mx.Lock()
	for i := range created {
		if !created[i].IsClosed() {
			o++
		}
	}
	mx.Unlock()
	return
}
