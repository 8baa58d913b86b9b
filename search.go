package memory

import (
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/retrieval"
)

// SearchMode and SearchField re-export internal/retrieval's text-search
// vocabulary at the engine boundary, so callers of ListEpisodesFiltered
// never import an internal package directly.
type (
	SearchMode     = retrieval.SearchMode
	SearchModeKind = retrieval.SearchModeKind
	SearchField    = retrieval.SearchField
)

const (
	SearchModeExact SearchModeKind = retrieval.SearchModeExact
	SearchModeFuzzy SearchModeKind = retrieval.SearchModeFuzzy
	SearchModeRegex SearchModeKind = retrieval.SearchModeRegex

	FieldDescription SearchField = retrieval.FieldDescription
	FieldSteps       SearchField = retrieval.FieldSteps
	FieldOutcome     SearchField = retrieval.FieldOutcome
	FieldTags        SearchField = retrieval.FieldTags
	FieldDomain      SearchField = retrieval.FieldDomain
	FieldAll         SearchField = retrieval.FieldAll
)

func searchEpisodes(episodes []*model.Episode, query string, mode SearchMode, fields []SearchField) ([]*model.Episode, error) {
	return retrieval.Search(episodes, query, mode, fields)
}
