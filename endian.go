package syslatency

import "encoding/binary"

type Endianness string

const (
	BigEndian    Endianness = "big-endian"
	LittleEndian Endianness = "little-endian"
)

var (
	// NativeEndian is the byte order of the local platform. The probe writes
	// records in this order, so events are decoded with it.
	NativeEndian binary.ByteOrder = binary.NativeEndian
	// NativeEndianness is the endianness of the current architecture.
	NativeEndianness = detectEndianness()
)

func detectEndianness() Endianness {
	if binary.NativeEndian.Uint16([]byte{0xCD, 0xAB}) == 0xABCD {
		return LittleEndian
	}
	return BigEndian
}
