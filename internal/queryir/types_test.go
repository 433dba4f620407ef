package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect_ImplementsQuery(t *testing.T) {
	var q Query = Select{From: "files", Field: "path"}

	switch q.(type) {
	case Select:
		// Expected
	default:
		t.Fatal("unexpected type")
	}
}

func TestPredicate_SealedInterface(t *testing.T) {
	preds := []Predicate{
		Equals{Field: "inode", Value: "42"},
		TagEquals{Key: "project", Value: "Alpha"},
		Between{Field: "modified_time", From: 1, To: 2},
		Contains{Field: "path", Substring: "/docs/"},
		And{},
		Or{},
		&Equals{}, &TagEquals{}, &Between{}, &Contains{}, &And{}, &Or{},
	}

	for _, p := range preds {
		switch p.(type) {
		case Equals, *Equals, TagEquals, *TagEquals, Between, *Between,
			Contains, *Contains, And, *And, Or, *Or:
		default:
			t.Errorf("unexpected predicate type %T", p)
		}
	}
}

func TestComplexQuery_Construction(t *testing.T) {
	q := Select{
		From:  "files",
		Field: "path",
		Filter: And{Predicates: []Predicate{
			Or{Predicates: []Predicate{
				TagEquals{Key: "collaborator", Value: "kim"},
				TagEquals{Key: "collaborator", Value: "lee"},
			}},
			Between{Field: "modified_time", From: 100, To: 200},
		}},
	}

	and, ok := q.Filter.(And)
	assert.True(t, ok)
	assert.Len(t, and.Predicates, 2)
	or, ok := and.Predicates[0].(Or)
	assert.True(t, ok)
	assert.Len(t, or.Predicates, 2)
}
