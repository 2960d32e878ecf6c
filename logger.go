package hiz

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Builders log per frame, so a disabled
// level must not cost an attribute allocation.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr is read by every Builder and backend on each frame and may be
// swapped while frames are being recorded.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger sets the logger every pyramid builder writes to. Devices pick it
// up when a Builder is created over them, and WithLogger is the option form.
// Nothing is logged until a logger is set; nil turns logging off again.
//
// A view losing its pyramid for one frame is logged at [slog.LevelWarn] with
// the view ID and the cause. Pipeline compilation and builder setup are
// [slog.LevelInfo]. Per-frame dispatch counts and level plans are
// [slog.LevelDebug], which is the level to use when checking a frame graph:
//
//	hiz.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger set by SetLogger. Backends fall back to it when
// no Builder has handed them one.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to the device if it accepts one.
func propagateLogger(d Device, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
