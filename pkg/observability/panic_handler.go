package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in a background goroutine and logs it with
// the full stack. Must be called in a defer. The panic is swallowed, so
// only use it where dying with the goroutine would take the process down
// with it (metric pollers, cron jobs).
func RecoverPanic(logger *Logger, scope string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": fmt.Sprintf("%v", r),
			"stack": string(debug.Stack()),
			"scope": scope,
		}).Error("Recovered panic")
	}
}
