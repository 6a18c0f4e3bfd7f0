// Package interrupt runs registered shutdown handlers on SIGINT or on a
// programmatic shutdown request, in LIFO order.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/Hubmakerlabs/agentstr/pkg/qu"
	"github.com/Hubmakerlabs/agentstr/pkg/slog"
	"go.uber.org/atomic"
)

var log, _ = slog.New(os.Stderr)

type handlerWithSource struct {
	source string
	fn     func()
}

var (
	requested atomic.Bool

	// ch receives SIGINT (Ctrl+C) signals.
	ch chan os.Signal

	signals = []os.Signal{os.Interrupt}

	// ShutdownRequestChan can receive programmatic shutdown requests.
	ShutdownRequestChan = qu.T()

	addHandlerChan = make(chan handlerWithSource)

	// HandlersDone is closed after all handlers run the first time an
	// interrupt is signalled.
	HandlersDone = make(qu.C)

	callbacks       []func()
	callbackSources []string
)

// Listener listens for interrupt signals, registers interrupt callbacks,
// and responds to custom shutdown signals as required.
func Listener() {
	invokeCallbacks := func() {
		// run handlers in LIFO order
		for i := range callbacks {
			idx := len(callbacks) - 1 - i
			log.D.Ln("running interrupt callback", idx, callbackSources[idx])
			callbacks[idx]()
		}
		log.D.Ln("interrupt handlers finished")
		HandlersDone.Q()
	}
out:
	for {
		select {
		case sig := <-ch:
			log.D.Ln("received interrupt signal", sig)
			requested.Store(true)
			invokeCallbacks()
			break out

		case <-ShutdownRequestChan.Wait():
			log.W.Ln("received shutdown request - shutting down...")
			requested.Store(true)
			invokeCallbacks()
			break out

		case handler := <-addHandlerChan:
			callbacks = append(callbacks, handler.fn)
			callbackSources = append(callbackSources, handler.source)

		case <-HandlersDone.Wait():
			break out
		}
	}
}

// AddHandler adds a handler to call when a SIGINT (Ctrl+C) is received.
// The first call starts the listener goroutine.
func AddHandler(handler func()) {
	_, loc, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf("%s:%d", loc, line)
	log.D.Ln("handler added by:", msg)
	if ch == nil {
		ch = make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		go Listener()
	}
	addHandlerChan <- handlerWithSource{msg, handler}
}

// Request programmatically requests a shutdown.
func Request() {
	if requested.Load() {
		log.D.Ln("shutdown already requested")
		return
	}
	requested.Store(true)
	ShutdownRequestChan.Q()
}

// Requested returns true if an interrupt has been requested.
func Requested() bool { return requested.Load() }

// GoroutineDump returns a string with the current goroutine dump, to show
// what is going on in case of timeout.
func GoroutineDump() string {
	buf := make([]byte, 1<<18)
	n := runtime.Stack(buf, true)
	return string(buf[:n])
}
