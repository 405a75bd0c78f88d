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

// Package membackend is a small in-process fsops.FileSystem used to drive
// the open-behind dispatcher in tests and in the openbehind-bench demo,
// standing in for a real backend transport.
package membackend

import (
	"sync"
	"time"

	"github.com/gzhang91/openbehind/fsops"
)

type file struct {
	data []byte
}

// Backend is a map-of-inodes filesystem. Every inode exists unless it has
// been explicitly marked failing via FailOpen.
type Backend struct {
	mu sync.Mutex

	files map[fsops.InodeID]*file

	// failOpen, when set for an inode, causes Open (real or anonymous) to
	// fail with that error for as long as the entry remains.
	failOpen map[fsops.InodeID]error

	// openDelay is applied before every real Open call completes, to
	// make races over the suspension queues observable/reproducible in
	// tests.
	openDelay time.Duration

	openCount map[fsops.InodeID]int
}

func New() *Backend {
	return &Backend{
		files:     make(map[fsops.InodeID]*file),
		failOpen:  make(map[fsops.InodeID]error),
		openCount: make(map[fsops.InodeID]int),
	}
}

// SetOpenDelay makes every subsequent Open call sleep for d before
// returning, to widen races in tests that assert FIFO ordering.
func (b *Backend) SetOpenDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openDelay = d
}

// FailOpen makes Open against inode fail with err until ClearFailOpen is
// called.
func (b *Backend) FailOpen(inode fsops.InodeID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOpen[inode] = err
}

func (b *Backend) ClearFailOpen(inode fsops.InodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failOpen, inode)
}

// OpenCount reports how many times Open actually reached the backend for
// inode; used to assert at-most-one-open-per-handle.
func (b *Backend) OpenCount(inode fsops.InodeID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openCount[inode]
}

func (b *Backend) ensure(inode fsops.InodeID) *file {
	f, ok := b.files[inode]
	if !ok {
		f = &file{}
		b.files[inode] = f
	}
	return f
}

func (b *Backend) Open(op *fsops.OpenOp) error {
	b.mu.Lock()
	delay := b.openDelay
	failErr, failing := b.failOpen[op.Inode]
	b.openCount[op.Inode]++
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		return failErr
	}

	b.mu.Lock()
	b.ensure(op.Inode)
	b.mu.Unlock()
	return nil
}

func (b *Backend) OpenAnonymous(inode fsops.InodeID) (fsops.HandleID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, failing := b.failOpen[inode]; failing {
		return 0, err
	}
	b.ensure(inode)
	return fsops.AnonymousHandleID, nil
}

func (b *Backend) Release(op *fsops.ReleaseOp) error { return nil }
func (b *Backend) Forget(op *fsops.ForgetOp) error   { return nil }

func (b *Backend) Readv(op *fsops.ReadvOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.ensure(op.Inode)
	end := op.Offset + int64(op.Size)
	if end > int64(len(f.data)) {
		end = int64(len(f.data))
	}
	if op.Offset >= end {
		op.Data = nil
		return nil
	}
	op.Data = append([]byte(nil), f.data[op.Offset:end]...)
	return nil
}

func (b *Backend) Fstat(op *fsops.FstatOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.ensure(op.Inode)
	op.Attributes.Size = uint64(len(f.data))
	return nil
}

func (b *Backend) Writev(op *fsops.WritevOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.ensure(op.Inode)
	end := op.Offset + int64(len(op.Data))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[op.Offset:], op.Data)
	op.BytesWritten = len(op.Data)
	return nil
}

func (b *Backend) Flush(op *fsops.FlushOp) error             { return nil }
func (b *Backend) Fsync(op *fsops.FsyncOp) error              { return nil }
func (b *Backend) Ftruncate(op *fsops.FtruncateOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.ensure(op.Inode)
	if op.Size < int64(len(f.data)) {
		f.data = f.data[:op.Size]
	} else {
		grown := make([]byte, op.Size)
		copy(grown, f.data)
		f.data = grown
	}
	return nil
}
func (b *Backend) Fsetattr(op *fsops.FsetattrOp) error         { return nil }
func (b *Backend) Fgetxattr(op *fsops.FgetxattrOp) error       { return nil }
func (b *Backend) Fsetxattr(op *fsops.FsetxattrOp) error       { return nil }
func (b *Backend) Fremovexattr(op *fsops.FremovexattrOp) error { return nil }
func (b *Backend) Fxattrop(op *fsops.FxattropOp) error         { return nil }
func (b *Backend) Finodelk(op *fsops.FinodelkOp) error         { return nil }
func (b *Backend) Fentrylk(op *fsops.FentrylkOp) error         { return nil }
func (b *Backend) Lk(op *fsops.LkOp) error                     { return nil }
func (b *Backend) Fallocate(op *fsops.FallocateOp) error       { return nil }
func (b *Backend) Discard(op *fsops.DiscardOp) error           { return nil }
func (b *Backend) Zerofill(op *fsops.ZerofillOp) error         { return nil }

func (b *Backend) Unlink(op *fsops.UnlinkOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, op.Child)
	return nil
}

func (b *Backend) Rename(op *fsops.RenameOp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if op.TargetInode != 0 {
		delete(b.files, op.TargetInode)
	}
	return nil
}

func (b *Backend) Setattr(op *fsops.SetattrOp) error   { return nil }
func (b *Backend) Setxattr(op *fsops.SetxattrOp) error { return nil }

var _ fsops.FileSystem = (*Backend)(nil)
var _ fsops.AnonymousOpener = (*Backend)(nil)
