// Package protocol holds the wire-format primitive the persisted
// configuration codec needs. Grounded on the teacher's protocol/crc16.go,
// which computes the same CRC16 variant Klipper uses on its serial link;
// this repo has no serial transport (out of scope per spec 1) but reuses
// the identical checksum to trail the EEPROM image spec 6 describes, so a
// corrupted or torn persisted-settings write is caught the same way a
// corrupted wire message would be.
package protocol

// CRC16 computes the checksum trailing a persisted configuration image
// (see persist.Config.Save/Load).
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
