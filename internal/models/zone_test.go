package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoneScheduleValidate(t *testing.T) {
	base := ZoneSchedule{ZoneID: 1, Weekday: Monday, OpenTime: MustTimeOfDay("08:00"), CloseTime: MustTimeOfDay("20:00")}
	assert.NoError(t, base.Validate())

	allDay := base
	allDay.OpenTime, allDay.CloseTime = 0, EndOfDay
	assert.NoError(t, allDay.Validate())

	tests := map[string]func(s *ZoneSchedule){
		"weekday zero":  func(s *ZoneSchedule) { s.Weekday = 0 },
		"weekday nine":  func(s *ZoneSchedule) { s.Weekday = 9 },
		"empty window":  func(s *ZoneSchedule) { s.CloseTime = s.OpenTime },
		"reversed":      func(s *ZoneSchedule) { s.OpenTime, s.CloseTime = s.CloseTime, s.OpenTime },
		"past midnight": func(s *ZoneSchedule) { s.CloseTime = EndOfDay + 60 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := base
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSchedule)
		})
	}
}

func TestWeekdayPrev(t *testing.T) {
	assert.Equal(t, Sunday, Monday.Prev())
	assert.Equal(t, Monday, Tuesday.Prev())
	assert.Equal(t, Saturday, Sunday.Prev())
}
