package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	t.Run("string keys", func(t *testing.T) {
		tests := []struct {
			name     string
			input    map[string]int
			expected []string
		}{
			{"empty map", map[string]int{}, []string{}},
			{"single key", map[string]int{"contacts": 1}, []string{"contacts"}},
			{"multiple keys", map[string]int{"deals": 1, "companies": 2, "contacts": 3}, []string{"companies", "contacts", "deals"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, tt.expected, SortedKeys(tt.input))
			})
		}
	})

	t.Run("int keys", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3}, SortedKeys(map[int]bool{3: true, 1: false, 2: true}))
	})
}

func TestCloneFields(t *testing.T) {
	in := map[string]any{"name": "Acme", "domain": nil, "revenue": 0.0}

	out := CloneFields(in)

	assert.Equal(t, map[string]any{"name": "Acme", "domain": nil, "revenue": 0.0}, out)
	assert.Contains(t, out, "domain")

	out["name"] = "Other"
	assert.Equal(t, "Acme", in["name"])

	assert.NotNil(t, CloneFields(nil))
}
