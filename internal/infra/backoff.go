package infra

import (
	"math"
	"time"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given retry attempt,
// doubling from the base delay up to the cap.
func CalculateBackoff(retryCount int) time.Duration {
	// Cap retry count to prevent overflow (2^6 = 64 seconds > max 60s)
	if retryCount > 6 {
		return reconnectMaxDelay
	}
	delay := reconnectBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	return delay
}
