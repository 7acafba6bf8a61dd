package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
)

// ParseGuests turns raw form input into a party size.
func ParseGuests(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ValidationError{Field: "guests", Message: MsgGuestsInvalid}
	}

	if err := validateGuests(n); err != nil {
		return 0, err
	}

	return n, nil
}

func validateGuests(n int) error {
	if n < 1 {
		return &ValidationError{Field: "guests", Message: MsgGuestsMin}
	}
	return nil
}

// today is the current calendar date in the restaurant's time zone.
func (s *Service) today() time.Time {
	return domain.DateOf(s.cfg.Now().In(s.cfg.Location))
}

// inAdvance reports whether date is tomorrow or later.
func (s *Service) inAdvance(date time.Time) bool {
	return domain.DateOf(date).After(s.today())
}

func (s *Service) validateSlot(date time.Time, at domain.TimeOfDay) error {
	if !s.inAdvance(date) {
		return &ValidationError{Field: "date", Message: MsgDateAdvance}
	}

	if at < s.cfg.OpeningTime || at > s.cfg.LastTime {
		return &ValidationError{Field: "time", Message: MsgTimeRange}
	}

	return nil
}
