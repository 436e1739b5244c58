package eda

import (
	"encoding/binary"
	"fmt"
)

// Level is an EDA reading as seen by the application.
type Level uint8

// LevelLen is the size of the encoded characteristic value.
const LevelLen = 2

// EncodeLevel returns the wire form of a level: a big-endian uint16.
func EncodeLevel(l Level) [LevelLen]byte {
	var b [LevelLen]byte
	binary.BigEndian.PutUint16(b[:], uint16(l))
	return b
}

// DecodeLevel parses a characteristic value back into a Level.
func DecodeLevel(b []byte) (Level, error) {
	if len(b) != LevelLen {
		return 0, fmt.Errorf("eda level must be %d bytes, got %d", LevelLen, len(b))
	}
	v := binary.BigEndian.Uint16(b)
	if v > 0xFF {
		return 0, fmt.Errorf("eda level %d out of range", v)
	}
	return Level(v), nil
}
