package model

import (
	"testing"

	"github.com/google/uuid"
)

func TestRelationshipRejectsSelfReference(t *testing.T) {
	id := uuid.New()
	r := NewRelationship(id, id, RelationDependsOn, "tester")
	if err := r.Validate(); err == nil {
		t.Fatal("expected error for self-referencing relationship")
	}
}

func TestIsAcyclicType(t *testing.T) {
	cases := map[RelationType]bool{
		RelationParentChild: true,
		RelationDependsOn:   true,
		RelationBlocks:      true,
		RelationFollows:     false,
		RelationRelatedTo:   false,
		RelationDuplicates:  false,
		RelationReferences:  false,
	}
	for relType, want := range cases {
		if got := IsAcyclicType(relType); got != want {
			t.Errorf("IsAcyclicType(%s) = %v, want %v", relType, got, want)
		}
	}
}
