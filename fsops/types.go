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

import (
	"os"
	"time"
)

// InodeAttributes mirrors the subset of posix stat(2) fields this layer
// passes through untouched; it never interprets them itself.
type InodeAttributes struct {
	Size   uint64
	Nlink  uint32
	Mode   os.FileMode
	Uid    uint32
	Gid    uint32
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
}

// SetattrMask records which fields of an InodeAttributes a Setattr/Fsetattr
// call actually intends to change.
type SetattrMask uint32

const (
	SetattrSize SetattrMask = 1 << iota
	SetattrMode
	SetattrUid
	SetattrGid
	SetattrAtime
	SetattrMtime
)

// FileLock describes a posix advisory byte-range lock.
type FileLock struct {
	Type  LockType
	Start int64
	Len   int64 // zero means "to end of file"
	Pid   int32
}

type LockType int

const (
	LockUnlock LockType = iota
	LockShared
	LockExclusive
)

// FallocateMode mirrors the fallocate(2) mode bits relevant to this layer.
type FallocateMode uint32

const (
	FallocateKeepSize FallocateMode = 1 << iota
	FallocatePunchHole
	FallocateZeroRange
)
