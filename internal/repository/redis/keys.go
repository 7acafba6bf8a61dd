package redisrepo

import (
	"fmt"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/Katia-D15/book-my-table/internal/repository"
)

const ns = "booktable:v1"

func KeyTables() string {
	return ns + ":tables"
}

// KeyAvailability names one cached answer. gen is the inventory generation
// and ver the version of date; bumping either orphans the key.
func KeyAvailability(date time.Time, gen, ver int64, at domain.TimeOfDay, guests int) string {
	return fmt.Sprintf("%s:availability:%s:g%d:v%d:%s:%d", ns, repository.DateKey(date), gen, ver, at, guests)
}

func KeyAvailabilityVersion(date time.Time) string {
	return fmt.Sprintf("%s:availability-ver:%s", ns, repository.DateKey(date))
}

func KeyAvailabilityGeneration() string {
	return ns + ":availability-gen"
}

// PatternAvailability matches every cached availability answer for date.
func PatternAvailability(date time.Time) string {
	return fmt.Sprintf("%s:availability:%s:*", ns, repository.DateKey(date))
}

func PatternAllAvailability() string {
	return ns + ":availability:*"
}

func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%d:%s", ns, userID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
