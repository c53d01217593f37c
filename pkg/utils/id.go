package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Fallback counter when the random source is unavailable.
var idCounter uint64

// GenerateSessionID generates a session ID with a timestamp prefix, used
// to name the per-session result files.
func GenerateSessionID() string {
	timestamp := time.Now().Format("2006-01-02-15-04-05")
	b := make([]byte, 4)
	_, err := rand.Read(b)
	if err != nil {
		count := atomic.AddUint64(&idCounter, 1)
		return fmt.Sprintf("%s-%x", timestamp, count)
	}
	return fmt.Sprintf("%s-%s", timestamp, hex.EncodeToString(b))
}
