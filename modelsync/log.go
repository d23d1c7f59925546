package modelsync

import (
	"fmt"
	"unicode/utf8"
)

// Logging convention in the `modelsync` package:
// Info:
//     abnormal events only. This level should be silent while a session converges normally.
//     this includes:
//     - channel connect errors and drops
//     - frames or events that could not be applied
//     - panics recovered from handlers and callbacks
// V(1):
//     one line per applied event or command, tagged with the event name and entity id
// V(2):
//     per frame trace, including pings and timing from `Trace`
//
// Each line starts with a bracketed component tag:
//     [api] command layer
//     [c]   live channel
//     [d]   reconciliation dispatcher
//     [p]   plugins
//     [s]   sessions

const maxFrameSummaryLength = 96

// short form of a frame for log lines
func frameSummary(frame []byte) string {
	if len(frame) <= maxFrameSummaryLength {
		return string(frame)
	}
	cut := maxFrameSummaryLength
	for 0 < cut && !utf8.RuneStart(frame[cut]) {
		cut -= 1
	}
	return fmt.Sprintf("%s...(%d bytes)", frame[:cut], len(frame))
}
