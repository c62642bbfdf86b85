// Package dirent implements the directory layer (component 4.5): a
// directory's single data block interpreted as a fixed-capacity array of
// directory entries, with lookup, insert, remove, and rename-in-place.
//
// Grounded on dargueta-disko/file_systems/unixv1/dirents.go and
// file_systems/unixv6/dirents.go (fixed dirent arrays scanned linearly, an
// invalid slot free for reuse) and homework.c's struct fs_dirent usage.
package dirent

import (
	"bytes"
	"encoding/binary"

	fserrors "github.com/dargueta/blockfs/errors"
	"github.com/dargueta/blockfs/layout"
)

// Flag bits packed into Entry.Flags, mirroring the original dirent's
// valid:1, isDir:1 bitfield.
const (
	flagValid = 1 << 0
	flagIsDir = 1 << 1
)

// Entry is one fixed-size directory entry.
type Entry struct {
	Flags    uint16
	InodeNum uint16
	rawName  [layout.MaxNameLen + 1]byte
}

// IsValid reports whether this slot holds a live entry.
func (e *Entry) IsValid() bool { return e.Flags&flagValid != 0 }

// IsDir reports whether the entry refers to a directory.
func (e *Entry) IsDir() bool { return e.Flags&flagIsDir != 0 }

// Name returns the entry's NUL-terminated name as a Go string.
func (e *Entry) Name() string {
	n := bytes.IndexByte(e.rawName[:], 0)
	if n < 0 {
		n = len(e.rawName)
	}
	return string(e.rawName[:n])
}

// SetName stores name into the entry's fixed-size name field. It fails if
// name is longer than layout.MaxNameLen bytes.
func (e *Entry) SetName(name string) error {
	if len(name) > layout.MaxNameLen {
		return fserrors.ErrInvalidArgument.WithMessage("name too long")
	}
	var raw [layout.MaxNameLen + 1]byte
	copy(raw[:], name)
	e.rawName = raw
	return nil
}

func (e *Entry) marshal(w *bytes.Buffer) error {
	if err := binary.Write(w, binary.LittleEndian, e.Flags); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, e.InodeNum); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, e.rawName)
}

func (e *Entry) unmarshal(r *bytes.Reader) error {
	if err := binary.Read(r, binary.LittleEndian, &e.Flags); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &e.InodeNum); err != nil {
		return err
	}
	return binary.Read(r, binary.LittleEndian, &e.rawName)
}

// Block is the decoded contents of a directory's one data block: a fixed
// array of layout.EntriesPerDirBlock entries.
type Block [layout.EntriesPerDirBlock]Entry

// Decode unpacks raw (exactly layout.BlockSize bytes) into a Block.
func Decode(raw []byte) (*Block, error) {
	var b Block
	r := bytes.NewReader(raw)
	for i := range b {
		if err := b[i].unmarshal(r); err != nil {
			return nil, err
		}
	}
	return &b, nil
}

// Encode packs a Block back into layout.BlockSize raw bytes.
func (b *Block) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(layout.BlockSize)
	for i := range b {
		if err := b[i].marshal(buf); err != nil {
			return nil, err
		}
	}
	out := buf.Bytes()
	if len(out) < layout.BlockSize {
		padded := make([]byte, layout.BlockSize)
		copy(padded, out)
		return padded, nil
	}
	return out, nil
}

// Find returns the index of the valid entry named name, if any.
func (b *Block) Find(name string) (int, bool) {
	for i := range b {
		if b[i].IsValid() && b[i].Name() == name {
			return i, true
		}
	}
	return 0, false
}

// Insert writes a new entry into the first invalid slot. It fails with
// ErrExists if name is already present, or ErrNoSpace if every slot is in
// use.
func (b *Block) Insert(name string, inodeNum uint32, isDir bool) error {
	if _, exists := b.Find(name); exists {
		return fserrors.ErrExists.WithMessage(name)
	}
	for i := range b {
		if !b[i].IsValid() {
			if err := b[i].SetName(name); err != nil {
				return err
			}
			b[i].Flags = flagValid
			if isDir {
				b[i].Flags |= flagIsDir
			}
			b[i].InodeNum = uint16(inodeNum)
			return nil
		}
	}
	return fserrors.ErrNoSpace.WithMessage("directory is full")
}

// Remove zeroes the entry named name. It reports whether a match was found.
func (b *Block) Remove(name string) bool {
	idx, ok := b.Find(name)
	if !ok {
		return false
	}
	b[idx] = Entry{}
	return true
}

// RenameInPlace overwrites the name of the entry matching oldName with
// newName, leaving its inode reference untouched. It fails with ErrNotFound
// if no valid entry is named oldName, or ErrInvalidArgument if newName is
// too long.
func (b *Block) RenameInPlace(oldName, newName string) error {
	idx, ok := b.Find(oldName)
	if !ok {
		return fserrors.ErrNotFound.WithMessage(oldName)
	}
	return b[idx].SetName(newName)
}

// Count returns the number of valid (live) entries in the block.
func (b *Block) Count() int {
	n := 0
	for i := range b {
		if b[i].IsValid() {
			n++
		}
	}
	return n
}
