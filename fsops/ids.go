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

package fsops

// InodeID identifies a file independent of how many handles are open
// against it.
type InodeID uint64

// RootInodeID is the fixed identifier of the filesystem root.
const RootInodeID InodeID = 1

// HandleID identifies one open instance of an inode. Two handles opened
// against the same inode are never equal.
type HandleID uint64

// AnonymousHandleID is returned by a backend from OpenAnonymous; it is
// never installed into a handle table and is never released.
const AnonymousHandleID HandleID = 0

// OpenFlags mirrors the subset of posix open(2) flags this layer reasons
// about explicitly; other bits are passed through opaquely in Flags.
type OpenFlags uint32

const (
	OpenReadOnly OpenFlags = 1 << iota
	OpenWriteOnly
	OpenReadWrite
	OpenTruncate
	OpenDirect
	OpenAppend
)

// HasTruncate reports whether the open call asked the backend to truncate
// the file as part of the open, which this layer never defers.
func (f OpenFlags) HasTruncate() bool { return f&OpenTruncate != 0 }

// HasDirect reports whether the caller asked for O_DIRECT semantics.
func (f OpenFlags) HasDirect() bool { return f&OpenDirect != 0 }
