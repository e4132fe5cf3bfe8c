package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitParts(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		maxParts int
		want     []string
	}{
		{
			name:     "empty",
			text:     "   ",
			maxParts: 2,
			want:     nil,
		},
		{
			name:     "single paragraph",
			text:     "just one bubble",
			maxParts: 2,
			want:     []string{"just one bubble"},
		},
		{
			name:     "two paragraphs fit",
			text:     "first\n\nsecond",
			maxParts: 2,
			want:     []string{"first", "second"},
		},
		{
			name:     "overflow folds into last part",
			text:     "one\n\ntwo\n\nthree\n\nfour",
			maxParts: 2,
			want:     []string{"one", "two\n\nthree\n\nfour"},
		},
		{
			name:     "max one never splits",
			text:     "a\n\nb\n\nc",
			maxParts: 1,
			want:     []string{"a\n\nb\n\nc"},
		},
		{
			name:     "blank chunks dropped",
			text:     "one\n\n\n\n  \n\ntwo",
			maxParts: 3,
			want:     []string{"one", "two"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitParts(tc.text, tc.maxParts)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("SplitParts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
