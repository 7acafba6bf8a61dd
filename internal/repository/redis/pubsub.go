package redisrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Katia-D15/book-my-table/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const msgBookingChanged = "booking_changed"

// BookingChange is the payload published after a booking commit.
type BookingChange struct {
	Type      string    `json:"type"`
	BookingID uuid.UUID `json:"booking_id"`
	Date      string    `json:"date"`
	TsUnix    int64     `json:"ts_unix"`
}

type BookingsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewBookingsPubSub(rdb *redis.Client) *BookingsPubSub {
	return &BookingsPubSub{
		rdb:     rdb,
		channel: ChannelBookingsChanged(),
	}
}

func (p *BookingsPubSub) PublishBookingChanged(ctx context.Context, id uuid.UUID, date time.Time) error {
	b, err := json.Marshal(BookingChange{
		Type:      msgBookingChanged,
		BookingID: id,
		Date:      repository.DateKey(date),
		TsUnix:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every well-formed change until ctx is done.
func (p *BookingsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ch BookingChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	msgs := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if ch, ok := decodeBookingChange(m.Payload); ok {
				handler(ctx, ch)
			}
		}
	}
}

func decodeBookingChange(payload string) (BookingChange, bool) {
	var ch BookingChange
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return BookingChange{}, false
	}
	if ch.Type != msgBookingChanged || ch.BookingID == uuid.Nil {
		return BookingChange{}, false
	}
	return ch, true
}
