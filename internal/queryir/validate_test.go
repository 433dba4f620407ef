package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_ValidQuery(t *testing.T) {
	q := Select{
		From:  "files",
		Field: "path",
		Filter: And{Predicates: []Predicate{
			TagEquals{Key: "project", Value: "Alpha"},
			&Between{Field: "modified_time", From: 1, To: 10},
			Contains{Field: "path", Substring: "pdf"},
			Equals{Field: "volume_id", Value: "vol1"},
		}},
	}

	result := Validate(q)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "valid", result.String())
}

func TestValidate_NilFilterWarns(t *testing.T) {
	result := Validate(&Select{From: "files", Field: "path"})
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "every row")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"missing source", Select{Field: "path"}, "no source"},
		{"missing field", Select{From: "files"}, "no projected field"},
		{
			"inverted range",
			Select{From: "files", Field: "path", Filter: Between{Field: "modified_time", From: 10, To: 1}},
			"inverted",
		},
		{
			"empty tag key",
			Select{From: "files", Field: "path", Filter: TagEquals{Value: "x"}},
			"empty key",
		},
		{
			"null equals",
			Select{From: "files", Field: "path", Filter: Equals{Field: "inode"}},
			"NULL",
		},
		{
			"nested nil",
			Select{From: "files", Field: "path", Filter: Or{Predicates: []Predicate{And{Predicates: []Predicate{nil}}}}},
			"nil predicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.Valid)
			if assert.NotEmpty(t, result.Errors) {
				assert.Contains(t, result.Errors[0], tt.want)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	q := Select{From: "files", Field: "path", Filter: And{Predicates: []Predicate{
		Or{},
		Contains{Field: "path"},
	}}}

	result := Validate(q)
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 2)
	assert.Contains(t, result.String(), "warning: empty OR")
}

func TestValidate_Idempotent(t *testing.T) {
	q := Select{From: "files", Field: "path", Filter: Between{Field: "modified_time", From: 5, To: 1}}
	assert.Equal(t, Validate(q), Validate(q))
}
