package retrieval

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ccxlabs/mcp-context-server/internal/domain"
)

const (
	// IndexSuffix is the suffix for bleve index directories.
	IndexSuffix = ".bleve"

	// MaxBatchSize is the maximum number of documents per index batch.
	MaxBatchSize = 100
)

// LexicalDoc is the shape indexed into bleve for one fragment. Symbols
// holds the space-joined names of symbols overlapping the fragment and
// is boosted at query time so exact-name matches surface.
type LexicalDoc struct {
	ID      string `json:"id"`
	RepoID  string `json:"repo_id"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Text    string `json:"text"`
	Symbols string `json:"symbols"`
}

// LexicalIndex manages versioned bleve indexes over fragments. Each
// index version lives in its own directory; readers hold an alias that
// is swapped atomically when a new version becomes current.
type LexicalIndex struct {
	baseDir string
}

// NewLexicalIndex creates a lexical index manager rooted at baseDir.
func NewLexicalIndex(baseDir string) *LexicalIndex {
	return &LexicalIndex{baseDir: baseDir}
}

// indexPath returns the directory for a version tag's index.
func (x *LexicalIndex) indexPath(tag string) string {
	return filepath.Join(x.baseDir, "indexes", tag+IndexSuffix)
}

// CreateIndexMapping builds the bleve mapping for fragment documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	textField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FragmentFieldText, textField)

	symbolsField := bleve.NewTextFieldMapping()
	symbolsField.Analyzer = simple.Name
	symbolsField.Store = false
	docMapping.AddFieldMappingsAt(domain.FragmentFieldSymbols, symbolsField)

	repoField := bleve.NewTextFieldMapping()
	repoField.Analyzer = keyword.Name
	repoField.Store = true
	docMapping.AddFieldMappingsAt(domain.FragmentFieldRepoID, repoField)

	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	kindField.Store = true
	docMapping.AddFieldMappingsAt(domain.FragmentFieldKind, kindField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt(domain.FragmentFieldPath, pathField)

	idField := bleve.NewTextFieldMapping()
	idField.Index = false
	idField.Store = true
	docMapping.AddFieldMappingsAt(domain.FragmentFieldID, idField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Create creates a fresh index for the given version tag. The tag must
// not already have an index.
func (x *LexicalIndex) Create(tag string) (bleve.Index, error) {
	index, err := bleve.New(x.indexPath(tag), CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index for %s: %w", tag, err)
	}
	return index, nil
}

// OpenForRead opens an existing version's index.
func (x *LexicalIndex) OpenForRead(tag string) (bleve.Index, error) {
	index, err := bleve.Open(x.indexPath(tag))
	if err != nil {
		return nil, fmt.Errorf("failed to open index for %s: %w", tag, err)
	}
	return index, nil
}

// Exists checks whether an index exists for the given version tag.
func (x *LexicalIndex) Exists(tag string) bool {
	_, err := os.Stat(x.indexPath(tag))
	return err == nil
}

// Delete removes a version's index from disk.
func (x *LexicalIndex) Delete(tag string) error {
	return os.RemoveAll(x.indexPath(tag))
}

// IndexFragments writes a set of fragments into the index in batches.
// symbolNames maps fragment ID to the space-joined symbol names for
// the boosted symbols field.
func (x *LexicalIndex) IndexFragments(index bleve.Index, fragments []domain.Fragment, symbolNames map[string]string) error {
	batch := index.NewBatch()
	batchSize := 0

	for i := range fragments {
		f := &fragments[i]
		doc := LexicalDoc{
			ID:      f.ID,
			RepoID:  f.RepoID,
			Path:    f.Path,
			Kind:    string(f.Kind),
			Text:    f.Text,
			Symbols: symbolNames[f.ID],
		}
		if err := batch.Index(f.ID, doc); err != nil {
			return fmt.Errorf("failed to batch fragment %s: %w", f.ID, err)
		}
		batchSize++

		if batchSize >= MaxBatchSize {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("batch index failed: %w", err)
			}
			batch = index.NewBatch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("final batch index failed: %w", err)
		}
	}
	return nil
}
