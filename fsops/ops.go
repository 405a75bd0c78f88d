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

import "context"

// OpenOp requests that loc be opened for the given flags, yielding handle.
// A FileSystem that defers the backend open is expected to still fill in
// Handle and return nil; the deferral is invisible at this layer.
type OpenOp struct {
	Context context.Context

	Inode   InodeID
	Loc     string
	Flags   OpenFlags
	Xdata   []byte

	// Filled in by the FileSystem before returning.
	Handle HandleID
}

// ReleaseOp is sent when the kernel (or whatever sits above this layer) has
// no further use for Handle. There will be no more fops against it, and no
// reply is expected beyond the error, which is almost always ignored by the
// caller.
type ReleaseOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
}

// ForgetOp is sent when Inode will not be referenced again. Implementations
// must not hold any per-inode state after replying.
type ForgetOp struct {
	Context context.Context

	Inode InodeID
}

// ReadvOp reads Size bytes starting at Offset. It is eligible for
// anonymous-handle substitution: an implementation is free to service it
// without the real Handle ever having reached the backend.
type ReadvOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Offset int64
	Size   int

	// DirectIO is set by the dispatcher when servicing the read through
	// an anonymous handle substituted for a deferred open that itself
	// requested O_DIRECT; backends that care about alignment read it.
	DirectIO bool

	Data []byte
}

// FstatOp fetches attributes through an open handle rather than a path,
// and like ReadvOp is eligible for anonymous-handle substitution.
type FstatOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID

	Attributes InodeAttributes
}

// WritevOp writes Data at Offset. Never eligible for anonymous-handle
// substitution: a write must land on the same backend fd future reads will
// observe, which an anonymous handle does not guarantee.
type WritevOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Offset int64
	Data   []byte

	BytesWritten int
}

// FlushOp corresponds to a close(2) (not fsync), called once per
// file-descriptor duplicate. Implementations must not assume one FlushOp
// per OpenOp.
type FlushOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
}

// FsyncOp asks that Data (and, unless DataOnly, metadata) be committed to
// stable storage.
type FsyncOp struct {
	Context context.Context

	Inode    InodeID
	Handle   HandleID
	DataOnly bool
}

// FtruncateOp changes the size of the file underlying Handle.
type FtruncateOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Size   int64
}

// FsetattrOp changes attributes of the file underlying Handle (as opposed
// to SetattrOp, which names the inode directly and is inode-scope).
type FsetattrOp struct {
	Context context.Context

	Inode      InodeID
	Handle     HandleID
	Attributes InodeAttributes
	Valid      SetattrMask
}

// FgetxattrOp, FsetxattrOp and FremovexattrOp manipulate an extended
// attribute through a handle rather than a path.
type FgetxattrOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Name   string

	Value []byte
}

type FsetxattrOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Name   string
	Value  []byte
	Flags  int
}

type FremovexattrOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Name   string
}

// FxattropOp is the generic "extended attribute transaction" op: add,
// remove, or set a batch of keys atomically through a handle.
type FxattropOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Flags  int
	Xattrs map[string][]byte
}

// FinodelkOp and FentrylkOp request byte-range and entry-level locks
// respectively, scoped to a handle.
type FinodelkOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Lock   FileLock
}

type FentrylkOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Name   string
	Lock   FileLock
}

// LkOp is a posix advisory lock request (F_GETLK/F_SETLK/F_SETLKW) against
// Handle.
type LkOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Lock   FileLock
	Wait   bool

	Result FileLock
}

// FallocateOp pre-allocates or punches a hole in the byte range
// [Offset, Offset+Size) of the file underlying Handle.
type FallocateOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Mode   FallocateMode
	Offset int64
	Size   int64
}

// DiscardOp (aka fallocate FALLOC_FL_PUNCH_HOLE without keep-size) tells
// the backend the byte range will no longer be read.
type DiscardOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Offset int64
	Size   int64
}

// ZerofillOp overwrites a byte range with zeroes without necessarily
// transferring zero bytes over the wire.
type ZerofillOp struct {
	Context context.Context

	Inode  InodeID
	Handle HandleID
	Offset int64
	Size   int64
}

// UnlinkOp removes the directory entry Name from Parent. Inode-scope: it
// must drain every deferred open outstanding on the child inode before the
// unlink is allowed to proceed, since the backend needs a real handle to
// decide whether to actually free the data.
type UnlinkOp struct {
	Context context.Context

	Parent InodeID
	Name   string
	Child  InodeID
}

// RenameOp moves Name from OldParent to NewName under NewParent. If the
// destination names an existing inode (TargetInode != 0), that inode is
// inode-scope drained before the rename proceeds, since the rename may
// unlink it.
type RenameOp struct {
	Context context.Context

	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string

	TargetInode InodeID
}

// SetattrOp changes attributes of Inode directly (as opposed to
// FsetattrOp, which goes through a handle). Inode-scope.
type SetattrOp struct {
	Context context.Context

	Inode      InodeID
	Attributes InodeAttributes
	Valid      SetattrMask
}

// SetxattrOp sets an extended attribute by inode. Inode-scope only when
// Name names an ACL or security-label key (see IsInodeScope); any other
// key bypasses the open-behind layer entirely.
type SetxattrOp struct {
	Context context.Context

	Inode InodeID
	Name  string
	Value []byte
	Flags int
}

// inodeScopeXattrPrefixes lists the extended-attribute namespaces whose
// mutation must drain outstanding deferred opens before proceeding,
// because the backend may use them to make access-control decisions that
// depend on having a real, already-open handle in flight.
var inodeScopeXattrPrefixes = []string{
	"system.posix_acl_access",
	"system.posix_acl_default",
	"security.",
}

// IsInodeScope reports whether this SetxattrOp must be treated as
// inode-scope (drain-before-proceed) rather than forwarded directly.
func (op *SetxattrOp) IsInodeScope() bool {
	for _, prefix := range inodeScopeXattrPrefixes {
		if len(op.Name) >= len(prefix) && op.Name[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
