package app

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"strconv"
)

const (
	roomCodeMin  = 100000
	roomCodeSpan = 900000
)

// GenerateRoomCode returns a random 6-digit numeric code. Codes are not checked against other
// active rooms.
func GenerateRoomCode() string {
	n, err := crand.Int(crand.Reader, big.NewInt(roomCodeSpan))
	if err != nil {
		// fallback to math/rand if crypto fails
		return strconv.Itoa(roomCodeMin + rand.Intn(roomCodeSpan))
	}
	return strconv.Itoa(roomCodeMin + int(n.Int64()))
}
