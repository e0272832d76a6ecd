package tagfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		tags    []string
		want    bool
	}{
		{"empty selects all", nil, nil, []string{"smoke"}, true},
		{"empty selects untagged", nil, nil, nil, true},
		{"include match", []string{"smoke"}, nil, []string{"@smoke", "@slow"}, true},
		{"include miss", []string{"smoke"}, nil, []string{"@slow"}, false},
		{"untagged misses include", []string{"smoke"}, nil, nil, false},
		{"exclude wins", []string{"smoke"}, []string{"slow"}, []string{"smoke", "slow"}, false},
		{"exclude only", nil, []string{"@wip"}, []string{"wip"}, false},
		{"prefix glob", []string{"owner:*"}, nil, []string{"@owner:qa"}, true},
		{"suffix glob", []string{"*-api"}, nil, []string{"orders-api"}, true},
		{"contains glob", []string{"*der*"}, nil, []string{"orders-api"}, true},
		{"star", []string{"*"}, nil, []string{"anything"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewSet(tt.include, tt.exclude).Filter(tt.tags))
		})
	}
}

func TestFuncAndAll(t *testing.T) {
	assert.True(t, All.Filter(nil))

	none := Func(func([]string) bool { return false })
	assert.False(t, none.Filter([]string{"smoke"}))
}

func TestParse(t *testing.T) {
	assert.Equal(t, []string{"smoke", "@fast"}, Parse(" smoke, ,@fast "))
	assert.Nil(t, Parse(""))
	assert.True(t, NewSet(Parse(""), nil).Empty())
}
