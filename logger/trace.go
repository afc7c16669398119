package logger

import "sync"

// Trace subsystems let the Operation Dispatcher and Entity-Path Watcher
// be traced independently without drowning routine INFO output:
// "dispatch" logs each path operation (Access through Unlink, and
// Unsupported) before it classifies the path, while Listxattr, Getxattr
// and Forward are not traced; "watcher" logs each fsnotify event passed
// to its event handler, while the Create that completes a rename pair
// gets no trace line of its own.
var (
	subsystemMu sync.RWMutex
	subsystems  = make(map[string]bool)
)

// EnableTraceFor turns on TRACE output for the named subsystems.
func EnableTraceFor(names ...string) {
	subsystemMu.Lock()
	defer subsystemMu.Unlock()
	for _, n := range names {
		subsystems[n] = true
	}
	EnableTrace()
}

// DisableTraceFor turns off TRACE output for the named subsystems.
func DisableTraceFor(names ...string) {
	subsystemMu.Lock()
	defer subsystemMu.Unlock()
	for _, n := range names {
		delete(subsystems, n)
	}
}

// TraceFor logs a TRACE message if subsystem has been enabled via
// EnableTraceFor.
func TraceFor(subsystem, format string, args ...any) {
	subsystemMu.RLock()
	on := subsystems[subsystem]
	subsystemMu.RUnlock()
	if !on {
		return
	}
	Trace(format, args...)
}
