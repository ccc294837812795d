package xmodem

import (
	"bufio"
	"io"
)

// Block is one XMODEM frame:
//
//	SOH | number | ^number | data[128] | checksum
type Block [BlockSize]byte

// Number returns the block number.
func (b *Block) Number() uint8 {
	return b[offsetNumber]
}

// Data returns the 128-byte payload area.
func (b *Block) Data() []byte {
	return b[offsetData:offsetChecksum]
}

// Checksum returns the checksum byte carried by the block.
func (b *Block) Checksum() byte {
	return b[offsetChecksum]
}

// Valid reports whether the header, complement and checksum are consistent.
func (b *Block) Valid() bool {
	return b[0] == SOH &&
		b[offsetComplement] == ^b[offsetNumber] &&
		b[offsetChecksum] == Checksum(b.Data())
}

// Checksum computes the classic XMODEM checksum: the sum of all bytes
// modulo 256.
func Checksum(data []byte) byte {
	var sum byte
	for _, c := range data {
		sum += c
	}
	return sum
}

// blockAssembler cuts the source into blocks. The reader position only
// moves forward; a retransmission reuses the previously assembled Block.
type blockAssembler struct {
	src *bufio.Reader
}

func newBlockAssembler(r io.Reader) *blockAssembler {
	return &blockAssembler{src: bufio.NewReaderSize(r, 4*BlockDataSize)}
}

// assemble fills b with the next block numbered number.
//
// It returns the count of real payload bytes placed in the block and
// whether a block was produced. When the source is already exhausted the
// block is left untouched and more is false, except for the first block,
// which is always produced (entirely filler for an empty source). A short
// block is padded with SUB and still counts as produced.
func (a *blockAssembler) assemble(b *Block, number uint8, first bool) (n int, more bool, err error) {
	var data [BlockDataSize]byte

	for n < BlockDataSize {
		c, err := a.src.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, false, wrapError(ErrSourceIO, "read source", err)
		}
		data[n] = c
		n++
	}

	if n == 0 && !first {
		return 0, false, nil
	}

	for i := n; i < BlockDataSize; i++ {
		data[i] = SUB
	}

	b[0] = SOH
	b[offsetNumber] = number
	b[offsetComplement] = ^number
	copy(b[offsetData:offsetChecksum], data[:])
	b[offsetChecksum] = Checksum(data[:])

	return n, true, nil
}
