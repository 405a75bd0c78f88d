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

import "github.com/gzhang91/openbehind/fsops"

// HandleDump is one HCtx's worth of statedump output.
type HandleDump struct {
	Handle      fsops.HandleID
	Inode       fsops.InodeID
	StillOpen   bool // frame still attached: no backend open launched yet
	Opened      bool
	Loc         string
	Flags       fsops.OpenFlags
	Contended   bool // true if the per-handle lock could not be taken
}

// Statedump is the whole-layer snapshot: the active options and one entry
// per currently tracked handle. Entries for handles whose lock is
// contended at dump time are reported with only Handle, Inode and
// Contended set, rather than blocking the dump.
type Statedump struct {
	Options Options
	Handles []HandleDump
}

// Dump walks the handle table with try-lock semantics, so a live system
// under load never blocks statedump, and statedump never perturbs
// ordering by momentarily taking a lock some fop is waiting on.
func (d *Dispatcher) Dump() Statedump {
	out := Statedump{Options: *d.options()}

	d.tableMu.Lock()
	handles := make([]*HCtx, 0, len(d.handles))
	for _, h := range d.handles {
		handles = append(handles, h)
	}
	d.tableMu.Unlock()

	for _, h := range handles {
		entry := HandleDump{Handle: h.handle}
		if h.inode != nil {
			entry.Inode = h.inode.inode
		}
		if !h.mu.tryLock() {
			entry.Contended = true
			out.Handles = append(out.Handles, entry)
			continue
		}
		frame := h.frame.Load()
		entry.StillOpen = frame != nil
		entry.Opened = h.opened
		if frame != nil {
			entry.Loc = frame.loc
			entry.Flags = frame.flags
		}
		h.mu.unlock()
		out.Handles = append(out.Handles, entry)
	}

	return out
}
