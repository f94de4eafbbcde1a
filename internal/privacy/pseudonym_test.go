package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToken(t *testing.T) {
	keyed := NewPseudonymizer(true, "secret")
	unkeyed := NewPseudonymizer(true, "")
	disabled := NewPseudonymizer(false, "secret")

	tests := []struct {
		name string
		p    *Pseudonymizer
		id   string
		raw  bool
	}{
		{name: "keyed", p: keyed, id: "P001"},
		{name: "unkeyed", p: unkeyed, id: "P001"},
		{name: "disabled", p: disabled, id: "P001", raw: true},
		{name: "empty id", p: keyed, id: "", raw: true},
		{name: "nil", p: nil, id: "P001", raw: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.Token(tt.id)
			if tt.raw {
				assert.Equal(t, tt.id, got)
				return
			}
			assert.True(t, strings.HasPrefix(got, "anon-"))
			assert.Len(t, got, len("anon-")+tokenLength)
			assert.NotContains(t, got, tt.id)
			assert.Equal(t, got, tt.p.Token(tt.id))
		})
	}
}

func TestTokenDependsOnKeyAndInput(t *testing.T) {
	a := NewPseudonymizer(true, "one")
	b := NewPseudonymizer(true, "two")

	assert.NotEqual(t, a.Token("P001"), b.Token("P001"))
	assert.NotEqual(t, a.Token("P001"), a.Token("P002"))
	assert.NotEqual(t, a.Token("P001"), NewPseudonymizer(true, "").Token("P001"))
}
