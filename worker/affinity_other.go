//go:build !linux

package worker

import "runtime"

// pinToCore is a portable fallback for platforms where
// golang.org/x/sys/unix's affinity call is unavailable. It still locks
// the goroutine to its OS thread so core pinning degrades to thread
// stickiness instead of failing outright.
func pinToCore(core int) error {
	runtime.LockOSThread()
	return nil
}
