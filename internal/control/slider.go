package control

import (
	"github.com/jusunglee/bikeshare-go/internal/event"
	"github.com/jusunglee/bikeshare-go/internal/models"
)

// TimeSlider is the time-of-day filter input. Each Set emits the value to
// subscribers, even when it did not change. The applied filter is owned by
// whoever listens; the slider keeps no state of its own.
type TimeSlider struct {
	input *event.Bus[models.TimeFilter]
}

// NewTimeSlider creates a slider with no subscribers
func NewTimeSlider() *TimeSlider {
	return &TimeSlider{
		input: event.NewBus[models.TimeFilter](),
	}
}

// OnInput subscribes fn to slider input events
func (s *TimeSlider) OnInput(fn func(models.TimeFilter)) *event.Subscription {
	return s.input.Subscribe(fn)
}

// Set validates the value, then notifies subscribers before returning
func (s *TimeSlider) Set(value models.TimeFilter) error {
	if err := value.Validate(); err != nil {
		return err
	}
	s.input.Publish(value)
	return nil
}
