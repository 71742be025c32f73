// Package nmlog provides the leveled, bitmask-gated logger used across
// the classifier. Log types are combined as a bitmask so a caller can
// silence hot-path Verbose logging in production while keeping
// Initialization and Debug output, the same tradeoff the teacher's own
// common.LogType makes for its per-packet logging.
package nmlog

import (
	"fmt"
	"log"
	"os"
)

// Type is a bitmask selecting which log statements are active.
type Type uint8

const (
	// None is a bit of its own; SetLevel(None) silences every gated
	// call. Fatal and Error are not gated and still log.
	None Type = 1 << iota
	// Initialization covers classifier construction and load.
	Initialization
	// Debug covers periodic, load-balancing and worker-lifecycle output.
	Debug
	// Verbose covers per-batch output; can influence hot-path performance.
	Verbose
)

var current = None | Initialization | Debug

// SetLevel replaces the active bitmask.
func SetLevel(t Type) {
	current = t
}

// Fatal logs unconditionally and terminates the process, mirroring the
// teacher's LogFatal: construction-time errors never continue.
func Fatal(v ...interface{}) {
	log.Fatal("ERROR: ", fmt.Sprintln(v...))
}

// Fatalf is Fatal with Sprintf-style formatting.
func Fatalf(format string, v ...interface{}) {
	Fatal(fmt.Sprintf(format, v...))
}

// Error logs at any level (construction errors matter regardless of
// the configured verbosity).
func Error(v ...interface{}) {
	log.Print("ERROR: ", fmt.Sprintln(v...))
}

// Warning logs when t is enabled.
func Warning(t Type, v ...interface{}) {
	if t&current != 0 {
		log.Print("WARNING: ", fmt.Sprintln(v...))
	}
}

// Debugf logs at Debug level when enabled.
func Debugf(t Type, format string, v ...interface{}) {
	if t&current != 0 {
		log.Print("DEBUG: ", fmt.Sprintf(format, v...))
	}
}

// Info logs at the given level when enabled.
func Info(t Type, v ...interface{}) {
	if t&current != 0 {
		log.Print("INFO: ", fmt.Sprintln(v...))
	}
}

func init() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)
}
