package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
	"go.uber.org/atomic"
)

func init() {
	switch strings.ToUpper(os.Getenv("AGENTSTR_LOG")) {
	case "1", "TRUE", "ON", "DEBUG":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	case "INFO":
		SetLogLevel(Info)
	case "WARN":
		SetLogLevel(Warn)
	case "ERROR":
		SetLogLevel(Error)
	case "FATAL":
		SetLogLevel(Fatal)
	case "0", "OFF", "FALSE":
		SetLogLevel(Off)
	default:
		SetLogLevel(Info)
	}
}

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between.
	Ln func(a ...interface{})
	// F prints like fmt.Printf surrounded by log details.
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice.
	S func(a ...interface{})
	// C accepts a closure so the formatting cost is avoided when the level is
	// not being viewed.
	C func(closure func() string)
	// Chk prints if there is an error and returns true if it was non-nil.
	Chk func(e error) bool
	// Err constructs an error via fmt.Errorf and logs it before returning it.
	Err func(format string, a ...interface{}) error

	// LevelPrinter is the set of printing primitives available at each log
	// level.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}

	LevelSpec struct {
		ID        int32
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel = atomic.NewInt32(Info)

	// LevelSpecs are the identifier, short name and color of each level.
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(255, 128, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
)

// Log bundles a LevelPrinter for each level. The one-letter field names keep
// call sites short: log.E.Ln, log.D.F, etc.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check bundles the error check primitives of each level so error guard
// expressions read as chk.E(err).
type Check struct {
	F, E, W, I, D, T Chk
}

// New returns a Log and Check pair writing to the given writer. Most packages
// declare these at the top of the file:
//
//	var log, chk = slog.New(os.Stderr)
func New(w io.Writer) (l *Log, c *Check) {
	l = &Log{
		F: printer(Fatal, w),
		E: printer(Error, w),
		W: printer(Warn, w),
		I: printer(Info, w),
		D: printer(Debug, w),
		T: printer(Trace, w),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

var std, _ = New(os.Stderr)

// GetStd returns the default stderr logger.
func GetStd() *Log { return std }

func SetLogLevel(l int32) { currentLevel.Store(l) }

func GetLogLevel() int32 { return currentLevel.Load() }

func joinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

func emit(w io.Writer, l int32, text string) {
	fmt.Fprintf(w, "%s %s %s\n",
		LevelSpecs[l].Colorizer(LevelSpecs[l].Name), text, getLoc(3))
}

func printer(l int32, w io.Writer) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			if currentLevel.Load() < l {
				return
			}
			emit(w, l, joinStrings(a...))
		},
		F: func(format string, a ...interface{}) {
			if currentLevel.Load() < l {
				return
			}
			emit(w, l, fmt.Sprintf(format, a...))
		},
		S: func(a ...interface{}) {
			if currentLevel.Load() < l {
				return
			}
			emit(w, l, spew.Sdump(a...))
		},
		C: func(closure func() string) {
			if currentLevel.Load() < l {
				return
			}
			emit(w, l, closure())
		},
		Chk: func(e error) bool {
			if e == nil {
				return false
			}
			if currentLevel.Load() >= l {
				emit(w, l, e.Error())
			}
			return true
		},
		Err: func(format string, a ...interface{}) error {
			if currentLevel.Load() >= l {
				emit(w, l, fmt.Sprintf(format, a...))
			}
			return fmt.Errorf(format, a...)
		},
	}
}

func getLoc(skip int) string {
	_, file, line, _ := runtime.Caller(skip)
	return color.Bit24(0, 128, 255, false).Sprint(file, ":", line)
}

// GetLoc returns the caller's source location, for callers that want to
// record where a resource was created.
func GetLoc(skip int) string { return getLoc(skip + 1) }
