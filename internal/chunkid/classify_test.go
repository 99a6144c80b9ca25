package chunkid_test

import (
	"testing"

	"github.com/cooklang/cooklang-sync/internal/chunkid"
)

func TestDefaultClassifier(t *testing.T) {
	c := chunkid.DefaultClassifier()

	cases := []struct {
		path string
		want chunkid.Classification
	}{
		{"recipes/a.cook", chunkid.Text},
		{"menus/mon.MENU", chunkid.Text},
		{"notes.md", chunkid.Text},
		{".shopping-list", chunkid.Text},
		{"photos/cake.jpg", chunkid.Binary},
		{"photos/cake.JPEG", chunkid.Binary},
		{"archive.zip", chunkid.Unlisted},
		{"README", chunkid.Unlisted},
	}

	for _, tc := range cases {
		got := c.Classify(tc.path)
		if got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestEligible(t *testing.T) {
	c := chunkid.DefaultClassifier()
	if !c.Eligible("a.cook") {
		t.Error("a.cook should be eligible")
	}
	if c.Eligible("a.zip") {
		t.Error("a.zip should not be eligible")
	}
}
