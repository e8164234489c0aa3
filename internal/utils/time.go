package utils

import (
	"fmt"
	"time"
)

// FormatWait renders a duration as "Xm Ys" for the analytics dashboard.
func FormatWait(d time.Duration) string {
	minutes := int(d.Seconds()) / 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
