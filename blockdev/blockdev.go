// Package blockdev implements the raw block device contract: a numbered
// array of fixed-size blocks with synchronous whole-block read/write.
//
// The filesystem core never talks to an *os.File directly; everything goes
// through a Device so tests can swap in an in-memory image.
package blockdev

import (
	"fmt"
	"io"
)

// BlockNumber identifies a single fixed-size block on the device.
type BlockNumber uint32

// Device is a fixed-block-size view over any seekable stream: a disk image
// file, or an in-memory buffer under test (see NewMemDevice).
type Device struct {
	BlockSize   uint
	TotalBlocks uint32
	stream      io.ReadWriteSeeker
}

// New wraps stream as a Device with the given block size and block count.
// stream must already be at least TotalBlocks*BlockSize bytes long.
func New(stream io.ReadWriteSeeker, blockSize uint, totalBlocks uint32) *Device {
	return &Device{BlockSize: blockSize, TotalBlocks: totalBlocks, stream: stream}
}

func (d *Device) checkBounds(start BlockNumber, n uint) error {
	if n == 0 {
		return nil
	}
	if uint32(start)+uint32(n) > d.TotalBlocks {
		return fmt.Errorf("blockdev: block range [%d, %d) out of bounds (device has %d blocks)",
			start, uint32(start)+uint32(n), d.TotalBlocks)
	}
	return nil
}

func (d *Device) offsetOf(start BlockNumber) int64 {
	return int64(start) * int64(d.BlockSize)
}

// Read fills buf with n blocks of data starting at block start. len(buf) must
// equal n*BlockSize.
func (d *Device) Read(start BlockNumber, n uint, buf []byte) error {
	if err := d.checkBounds(start, n); err != nil {
		return err
	}
	want := int(n) * int(d.BlockSize)
	if len(buf) != want {
		return fmt.Errorf("blockdev: read buffer is %d bytes, want %d", len(buf), want)
	}
	if _, err := d.stream.Seek(d.offsetOf(start), io.SeekStart); err != nil {
		return fmt.Errorf("blockdev: seek to block %d: %w", start, err)
	}
	if _, err := io.ReadFull(d.stream, buf); err != nil {
		return fmt.Errorf("blockdev: read %d block(s) at %d: %w", n, start, err)
	}
	return nil
}

// Write moves exactly n*BlockSize bytes from data to the device starting at
// block start.
func (d *Device) Write(start BlockNumber, n uint, data []byte) error {
	if err := d.checkBounds(start, n); err != nil {
		return err
	}
	want := int(n) * int(d.BlockSize)
	if len(data) != want {
		return fmt.Errorf("blockdev: write buffer is %d bytes, want %d", len(data), want)
	}
	if _, err := d.stream.Seek(d.offsetOf(start), io.SeekStart); err != nil {
		return fmt.Errorf("blockdev: seek to block %d: %w", start, err)
	}
	if _, err := d.stream.Write(data); err != nil {
		return fmt.Errorf("blockdev: write %d block(s) at %d: %w", n, start, err)
	}
	return nil
}

// ReadBlock is a convenience wrapper that reads exactly one block.
func (d *Device) ReadBlock(block BlockNumber) ([]byte, error) {
	buf := make([]byte, d.BlockSize)
	if err := d.Read(block, 1, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock is a convenience wrapper that writes exactly one block.
func (d *Device) WriteBlock(block BlockNumber, data []byte) error {
	return d.Write(block, 1, data)
}

// ZeroBlock overwrites a single block with BlockSize null bytes.
func (d *Device) ZeroBlock(block BlockNumber) error {
	return d.WriteBlock(block, make([]byte, d.BlockSize))
}
