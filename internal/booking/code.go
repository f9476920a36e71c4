package booking

import (
	"fmt"
	"math/rand"
	"time"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode produces a human-readable booking identifier: the DH
// prefix, two-digit year, five random alphanumerics, then month and day.
// Uniqueness is enforced by the database, not here; the commit path
// retries on conflict.
func GenerateCode() string {
	return generateCodeAt(time.Now())
}

func generateCodeAt(now time.Time) string {
	buf := make([]byte, 5)
	for i := range buf {
		buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return fmt.Sprintf("DH%02d%s%02d%02d", now.Year()%100, buf, int(now.Month()), now.Day())
}
