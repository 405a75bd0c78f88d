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

import "syscall"

// ErrNotImplemented is returned by every method of NotImplementedFileSystem.
var ErrNotImplemented = syscall.ENOSYS

// NotImplementedFileSystem answers every op with ErrNotImplemented. Embed
// it in a struct to pick up a FileSystem implementation for free, so new
// methods added to the interface don't break existing backends at compile
// time.
type NotImplementedFileSystem struct{}

var _ FileSystem = &NotImplementedFileSystem{}

func (fs *NotImplementedFileSystem) Open(op *OpenOp) error                   { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Release(op *ReleaseOp) error             { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Forget(op *ForgetOp) error               { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Readv(op *ReadvOp) error                 { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fstat(op *FstatOp) error                 { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Writev(op *WritevOp) error               { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Flush(op *FlushOp) error                 { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fsync(op *FsyncOp) error                 { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Ftruncate(op *FtruncateOp) error         { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fsetattr(op *FsetattrOp) error           { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fgetxattr(op *FgetxattrOp) error         { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fsetxattr(op *FsetxattrOp) error         { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fremovexattr(op *FremovexattrOp) error   { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fxattrop(op *FxattropOp) error           { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Finodelk(op *FinodelkOp) error           { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fentrylk(op *FentrylkOp) error           { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Lk(op *LkOp) error                       { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Fallocate(op *FallocateOp) error         { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Discard(op *DiscardOp) error             { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Zerofill(op *ZerofillOp) error           { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Unlink(op *UnlinkOp) error               { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Rename(op *RenameOp) error               { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Setattr(op *SetattrOp) error             { return ErrNotImplemented }
func (fs *NotImplementedFileSystem) Setxattr(op *SetxattrOp) error           { return ErrNotImplemented }
