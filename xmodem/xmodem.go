// Package xmodem implements the sending side of the XMODEM file transfer
// protocol.
//
// Only the classic variant is supported: 128-byte blocks protected by an
// 8-bit arithmetic checksum, started by the receiver's NAK. The sender pushes
// each block, waits for ACK or NAK, retransmits on NAK and finishes with EOT.
//
// The package works on top of any byte transport that can write buffers and
// return whatever bytes have arrived without blocking (see Transport). Adapters
// are provided for plain streams, serial ports and SSH sessions.
package xmodem

import (
	"fmt"
	"time"
)

// Control characters
const (
	SOH = 0x01 // Start of header
	EOT = 0x04 // End of transmission
	ACK = 0x06 // Acknowledge
	NAK = 0x15 // Negative acknowledge, also the receiver's start signal
	CAN = 0x18 // Cancel
	SUB = 0x1A // Filler for the unused tail of the last block (CP/M EOF)
)

// Block geometry
const (
	// BlockDataSize is the payload carried by one block.
	BlockDataSize = 128

	// BlockSize is the full frame: SOH, number, complement, data, checksum.
	BlockSize = 3 + BlockDataSize + 1

	offsetNumber     = 1
	offsetComplement = 2
	offsetData       = 3
	offsetChecksum   = offsetData + BlockDataSize
)

// Default timing and retry parameters
const (
	// NAKPollInterval is the delay between checks for the receiver's NAK.
	NAKPollInterval = 800 * time.Millisecond

	// ReceiverTimeout bounds the wait for the receiver's first NAK.
	ReceiverTimeout = 60 * time.Second

	// ACKPollInterval is the delay between checks for a data block response.
	ACKPollInterval = 150 * time.Millisecond

	// EOTPollInterval is the delay between checks for the EOT response.
	EOTPollInterval = 1500 * time.Millisecond

	// ACKTimeout bounds each wait for a response to a transmitted block.
	ACKTimeout = 60 * time.Second

	// EOTTimeout is the overall budget for getting EOT acknowledged,
	// counted from the first EOT sent.
	EOTTimeout = 60 * time.Second

	// MaxRetries is how many times one block may be retransmitted.
	MaxRetries = 10
)

var controlNames = map[byte]string{
	SOH: "SOH",
	EOT: "EOT",
	ACK: "ACK",
	NAK: "NAK",
	CAN: "CAN",
	SUB: "SUB",
}

// ControlName returns the mnemonic for a control byte, or its hex value.
func ControlName(b byte) string {
	if name, ok := controlNames[b]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", b)
}
