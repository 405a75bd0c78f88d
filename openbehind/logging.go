// Copyright 2026 The OpenBehind Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openbehind

import (
	"io"
	"log"
	"os"
)

// newDebugLogger returns a *log.Logger writing to stderr when enabled is
// true and discarding everything otherwise, matching the on/off debug
// logger this package's FUSE-layer sibling uses for its own -fuse.debug
// flag.
func newDebugLogger(enabled bool) *log.Logger {
	var w io.Writer = io.Discard
	if enabled {
		w = os.Stderr
	}
	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	return log.New(w, "open-behind: ", flags)
}

// logf writes a debug-level dispatch decision. It is always safe to call;
// the logger discards the message unless debug logging was enabled when
// the Dispatcher was constructed.
func (d *Dispatcher) logf(format string, args ...interface{}) {
	d.logger.Printf(format, args...)
}
