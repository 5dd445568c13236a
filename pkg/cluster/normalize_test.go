package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	stopwords := StopwordSet(nil)

	tests := []struct {
		name    string
		title   string
		channel string
		want    []string
	}{
		{
			name:  "lowercases and strips punctuation",
			title: "BREAKING: Apartment-Gate Update!!!",
			want:  []string{"breaking", "apartment", "gate", "update"},
		},
		{
			name:    "drops channel tokens",
			title:   "After Hours crew reacts to apartment drama",
			channel: "After Hours",
			want:    []string{"crew", "reacts", "apartment", "drama"},
		},
		{
			name:  "drops short tokens and stopwords",
			title: "my new clip of the big fallout",
			want:  []string{"new", "the", "big", "fallout"},
		},
		{
			name:  "stopwords cover plurals explicitly",
			title: "best clips and reactions compilation",
			want:  []string{"best", "and", "compilation"},
		},
		{
			name:  "all filler yields empty",
			title: "!!! ??? ...",
			want:  nil,
		},
		{
			name:    "title equal to channel yields empty",
			title:   "Morning Drive",
			channel: "Morning Drive",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTitle(tt.title, tt.channel, stopwords)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStopwordSetExtras(t *testing.T) {
	set := StopwordSet([]string{"VOD", "shorts"})

	assert.True(t, set["clip"], "base word present")
	assert.True(t, set["vod"], "extras are lowercased")
	assert.True(t, set["shorts"])
	assert.False(t, set["fallout"])

	tokens := NormalizeTitle("insane VOD moments", "", set)
	assert.Equal(t, []string{"insane", "moments"}, tokens)
}
