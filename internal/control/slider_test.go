package control

import (
	"errors"
	"testing"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSlider(t *testing.T) {
	s := NewTimeSlider()

	var got []models.TimeFilter
	sub := s.OnInput(func(f models.TimeFilter) { got = append(got, f) })

	require.NoError(t, s.Set(600))
	require.NoError(t, s.Set(600))
	require.NoError(t, s.Set(models.AnyTime))
	assert.Equal(t, []models.TimeFilter{600, 600, models.AnyTime}, got)

	err := s.Set(1440)
	assert.True(t, errors.Is(err, models.ErrInvalidFilter))
	assert.Len(t, got, 3)

	sub.Unsubscribe()
	require.NoError(t, s.Set(0))
	assert.Len(t, got, 3)
}
