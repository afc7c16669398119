package watcher

import "sync"

// resetForTest clears the process-wide singleton so each test gets its
// own Watcher instance. Only the test binary calls this; production code
// relies on Get's one-shot initialization.
func resetForTest() {
	instance = nil
	initErr = nil
	once = sync.Once{}
}
