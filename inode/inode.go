// Package inode implements the inode record and the in-memory inode table
// (component 4.3): an array mirroring the on-disk inode region, with
// read-by-number access and write-back of a single record.
package inode

import (
	"bytes"
	"encoding/binary"

	"github.com/dargueta/blockfs/layout"
)

// Mode bit layout, modeled directly on the original fsx600.h file-type bits:
// the top nibble carries the type, the rest is ordinary Unix permission bits.
const (
	TypeMask    = 0xF000
	TypeRegular = 0x8000
	TypeDir     = 0x4000
	PermMask    = 0x0FFF
)

// Inode is the fixed-size on-disk record for one filesystem object. Its
// field set and write-path arithmetic are grounded on homework.c's
// struct fs_inode (uid, gid, mode, ctime, mtime, size, direct[N_DIRECT],
// indir_1, indir_2); serialization style is grounded on
// dargueta-disko/file_systems/unixv1/driver.go's BytesToInode and on
// other_examples/flodinl-CloudFusion's binary.Read/Write-based Inode.
type Inode struct {
	Uid    uint32
	Gid    uint32
	Mode   uint32
	Ctime  int64
	Mtime  int64
	Size   uint64
	Direct [layout.NDirect]uint32
	Indir1 uint32
	Indir2 uint32
}

// IsDir reports whether the inode's type bits mark it as a directory.
func (n *Inode) IsDir() bool {
	return n.Mode&TypeMask == TypeDir
}

// IsRegular reports whether the inode's type bits mark it as a regular file.
func (n *Inode) IsRegular() bool {
	return n.Mode&TypeMask == TypeRegular
}

// MarshalBinary encodes the inode to its fixed-size on-disk representation.
func (n *Inode) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(layout.InodeSize)
	if err := binary.Write(buf, binary.LittleEndian, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes an inode from exactly layout.InodeSize bytes.
func (n *Inode) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data[:layout.InodeSize])
	return binary.Read(r, binary.LittleEndian, n)
}
