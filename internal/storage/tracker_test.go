package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Transitions(t *testing.T) {
	testCases := []struct {
		name  string
		steps func(tr *Tracker)
		want  State
	}{
		{name: "zero value is clean", steps: func(tr *Tracker) {}, want: Clean},
		{name: "mutation dirties", steps: func(tr *Tracker) { tr.MarkDirty() }, want: Dirty},
		{
			name: "begin takes the snapshot",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.begin()
			},
			want: Saving,
		},
		{
			name: "mutation during save",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.begin()
				tr.MarkDirty()
			},
			want: DirtySaving,
		},
		{
			name: "completed save cleans",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.begin()
				tr.SaveCompleted()
			},
			want: Clean,
		},
		{
			name: "completed save keeps later mutations",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.begin()
				tr.MarkDirty()
				tr.SaveCompleted()
			},
			want: Dirty,
		},
		{
			name: "failed save re-dirties",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.begin()
				tr.fail()
			},
			want: Dirty,
		},
		{
			name: "begin on clean is a no-op",
			steps: func(tr *Tracker) {
				tr.begin()
			},
			want: Clean,
		},
		{
			name: "completion without a save is a no-op",
			steps: func(tr *Tracker) {
				tr.MarkDirty()
				tr.SaveCompleted()
			},
			want: Dirty,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var tr Tracker
			tc.steps(&tr)
			assert.Equal(t, tc.want, tr.State())
		})
	}
}

func TestTracker_BeginReportsPreviousState(t *testing.T) {
	var tr Tracker
	tr.MarkDirty()

	assert.Equal(t, Dirty, tr.begin())
	assert.Equal(t, Saving, tr.begin())

	tr.MarkDirty()
	assert.Equal(t, DirtySaving, tr.begin())
	assert.Equal(t, DirtySaving, tr.State())
}
