package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const roomCodeSpace = 1_000_000

// GenerateSessionID - returns a new random session id.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateRoomCode - returns a 6 digit code players type in to join a session.
func GenerateRoomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(roomCodeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}
