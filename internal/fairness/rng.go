// Package fairness derives round seeds from a committed server seed, a
// client seed and a nonce, and verifies them after the server seed is
// revealed.
package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/lox/celojack/blackjack"
)

// ByteGenerator streams HMAC-SHA256 output keyed by the server seed.
// Each 32-byte block is HMAC(serverSeed, "client:nonce:round").
type ByteGenerator struct {
	serverSeed   string
	clientSeed   string
	nonce        uint64
	currentRound uint64
	currentPos   int
	buffer       [32]byte
}

// NewByteGenerator starts a stream at the given byte cursor
func NewByteGenerator(serverSeed, clientSeed string, nonce uint64, cursor uint64) *ByteGenerator {
	bg := &ByteGenerator{
		serverSeed:   serverSeed,
		clientSeed:   clientSeed,
		nonce:        nonce,
		currentRound: cursor / 32,
		currentPos:   int(cursor % 32),
	}
	bg.generateRound()
	return bg
}

// Next returns the next byte from the stream
func (bg *ByteGenerator) Next() byte {
	if bg.currentPos >= 32 {
		bg.currentRound++
		bg.currentPos = 0
		bg.generateRound()
	}

	b := bg.buffer[bg.currentPos]
	bg.currentPos++
	return b
}

// Read fills p from the stream. It never fails.
func (bg *ByteGenerator) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = bg.Next()
	}
	return len(p), nil
}

func (bg *ByteGenerator) generateRound() {
	h := hmac.New(sha256.New, []byte(bg.serverSeed))
	message := fmt.Sprintf("%s:%d:%d", bg.clientSeed, bg.nonce, bg.currentRound)
	h.Write([]byte(message))
	copy(bg.buffer[:], h.Sum(nil))
}

// DeriveSeed returns the deck seed for one round: the first 32 bytes of the
// stream keyed by the hex server seed.
func DeriveSeed(serverSeed blackjack.Seed, clientSeed string, nonce uint64) blackjack.Seed {
	var seed blackjack.Seed
	bg := NewByteGenerator(serverSeed.String(), clientSeed, nonce, 0)
	_, _ = bg.Read(seed[:])
	return seed
}
