package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		list    []string
		want    string
		wantHit bool
	}{
		{"case insensitive", "DM ME please", []string{"dm me", "info"}, "dm me", true},
		{"list order wins over text order", "info first, then dm me", []string{"dm me", "info"}, "dm me", true},
		{"substring inside a word", "more information?", []string{"info"}, "info", true},
		{"mixed case keyword", "send link pls", []string{"Send Link"}, "Send Link", true},
		{"no match", "nice photo", []string{"dm me", "info"}, "", false},
		{"blank keywords skipped", "anything", []string{"", "  "}, "", false},
		{"empty text", "", []string{"info"}, "", false},
		{"empty list", "info", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.text, tt.list)
			assert.Equal(t, tt.wantHit, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"dm me", "info"}, Normalize([]string{" DM me", "", "info", "dm ME"}))
	assert.Empty(t, Normalize(nil))
}
