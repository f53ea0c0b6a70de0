package engine_test

import (
	"reflect"
	"testing"

	"shiftledger/internal/engine"
)

func TestExtractTags(t *testing.T) {
	cases := []struct {
		content string
		want    []string
	}{
		{"no tags here", nil},
		{"#mood-good slept through the night", []string{"mood-good"}},
		{"refused #lunch, accepted #snack later", []string{"lunch", "snack"}},
		{"#a #a", []string{"a", "a"}},
		{"trailing hash # alone", nil},
		{"#b-1 then #b_2", []string{"b-1", "b_2"}},
	}
	for _, tc := range cases {
		got := engine.ExtractTags(tc.content)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ExtractTags(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}
