// Package pathminter generates deterministic, collision-free destination
// keys for optimized artifacts: "optimized/{yyyy-MM-dd-HH-mm-ss-SSS}_{offset}_{uuid}.{format}".
package pathminter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mint returns a fresh destination key for the given output format. The
// timestamp component is local wall clock; offset is the local UTC offset
// in hours-minutes form, dropping the trailing ":00" for whole-hour zones.
func Mint(format string) string {
	now := time.Now()
	timestamp := strings.Replace(now.Format("2006-01-02-15-04-05.000"), ".", "-", 1)

	return fmt.Sprintf("optimized/%s_%s_%s.%s", timestamp, utcOffset(now), uuid.New().String(), format)
}

// utcOffset renders now's zone offset as "+05", "+05:30", "-03", etc.
func utcOffset(now time.Time) string {
	_, offsetSeconds := now.Zone()
	sign := "+"
	if offsetSeconds < 0 {
		sign = "-"
		offsetSeconds = -offsetSeconds
	}
	hours := offsetSeconds / 3600
	minutes := (offsetSeconds % 3600) / 60

	if minutes == 0 {
		return fmt.Sprintf("%s%02d", sign, hours)
	}
	return fmt.Sprintf("%s%02d:%02d", sign, hours, minutes)
}
