// Package protocol implements the status report frames the lab firmware
// emits over its serial link, so a host can separate machine-readable
// scheduler reports from free-form menu text on the same line stream.
package protocol

// CRC16 calculates the checksum protecting a report frame's payload.
// Shift-based CCITT variant; small enough to run inside a task body on an
// 8-bit target.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b = b ^ uint8(crc&0xFF)
		b = b ^ (b << 4)
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}
