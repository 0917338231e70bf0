package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func intPtr(v int) *int { return &v }

func TestAdvanceMonthlyClampsToAnchor(t *testing.T) {
	anchor := intPtr(31)
	next := Advance(shared.Date(2024, time.January, 31), FrequencyMonthly, anchor)
	assert.Equal(t, shared.Date(2024, time.February, 29), next)

	next = Advance(next, FrequencyMonthly, anchor)
	assert.Equal(t, shared.Date(2024, time.March, 31), next)

	next = Advance(next, FrequencyMonthly, anchor)
	assert.Equal(t, shared.Date(2024, time.April, 30), next)
}

func TestAdvance(t *testing.T) {
	cases := []struct {
		name   string
		from   time.Time
		freq   Frequency
		anchor *int
		want   time.Time
	}{
		{"daily", shared.Date(2024, time.December, 31), FrequencyDaily, nil, shared.Date(2025, time.January, 1)},
		{"weekly", shared.Date(2024, time.February, 26), FrequencyWeekly, nil, shared.Date(2024, time.March, 4)},
		{"monthly no anchor keeps day", shared.Date(2024, time.May, 15), FrequencyMonthly, nil, shared.Date(2024, time.June, 15)},
		{"monthly no anchor clamps", shared.Date(2023, time.January, 31), FrequencyMonthly, nil, shared.Date(2023, time.February, 28)},
		{"monthly anchor below day", shared.Date(2024, time.May, 20), FrequencyMonthly, intPtr(5), shared.Date(2024, time.June, 5)},
		{"monthly year rollover", shared.Date(2024, time.December, 10), FrequencyMonthly, nil, shared.Date(2025, time.January, 10)},
		{"quarterly", shared.Date(2024, time.November, 30), FrequencyQuarterly, intPtr(31), shared.Date(2025, time.February, 28)},
		{"yearly leap day", shared.Date(2024, time.February, 29), FrequencyYearly, nil, shared.Date(2025, time.February, 28)},
		{"yearly anchored leap return", shared.Date(2027, time.February, 28), FrequencyYearly, intPtr(29), shared.Date(2028, time.February, 29)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Advance(tc.from, tc.freq, tc.anchor))
		})
	}
}

func TestTemplateDueOn(t *testing.T) {
	end := shared.Date(2024, time.March, 31)
	tmpl := Template{Active: true, NextRunDate: shared.Date(2024, time.March, 1), EndDate: &end}

	assert.True(t, tmpl.DueOn(shared.Date(2024, time.March, 1)))
	assert.False(t, tmpl.DueOn(shared.Date(2024, time.February, 29)))

	tmpl.NextRunDate = shared.Date(2024, time.April, 1)
	assert.False(t, tmpl.DueOn(shared.Date(2024, time.April, 5)), "past end date")

	tmpl.NextRunDate = shared.Date(2024, time.March, 1)
	tmpl.Active = false
	assert.False(t, tmpl.DueOn(shared.Date(2024, time.March, 5)), "paused")
}
