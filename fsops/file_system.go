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

// FileSystem is the interface a backend collaborator implements and the
// interface an open-behind dispatcher itself satisfies, so that a
// dispatcher can be dropped in front of any other FileSystem transparently.
//
// Each method is responsible for filling in the op's result fields and
// returning an error; unlike the op.Respond(err) convention used by the
// underlying transport further down the stack, there is no separate
// reply-delivery step here; the return value is the reply.
type FileSystem interface {
	Open(op *OpenOp) error
	Release(op *ReleaseOp) error
	Forget(op *ForgetOp) error

	Readv(op *ReadvOp) error
	Fstat(op *FstatOp) error
	Writev(op *WritevOp) error
	Flush(op *FlushOp) error
	Fsync(op *FsyncOp) error
	Ftruncate(op *FtruncateOp) error
	Fsetattr(op *FsetattrOp) error
	Fgetxattr(op *FgetxattrOp) error
	Fsetxattr(op *FsetxattrOp) error
	Fremovexattr(op *FremovexattrOp) error
	Fxattrop(op *FxattropOp) error
	Finodelk(op *FinodelkOp) error
	Fentrylk(op *FentrylkOp) error
	Lk(op *LkOp) error
	Fallocate(op *FallocateOp) error
	Discard(op *DiscardOp) error
	Zerofill(op *ZerofillOp) error

	Unlink(op *UnlinkOp) error
	Rename(op *RenameOp) error
	Setattr(op *SetattrOp) error
	Setxattr(op *SetxattrOp) error
}

// AnonymousOpener is implemented by backends that can hand back a handle
// for an inode without going through Open, for use with fops that do not
// require the real, caller-visible handle to have reached the backend yet.
type AnonymousOpener interface {
	OpenAnonymous(inode InodeID) (HandleID, error)
}
