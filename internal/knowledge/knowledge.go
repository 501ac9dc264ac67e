// Package knowledge retrieves best-practice guidance for the enrichment
// stage. The pipeline depends only on the Retriever contract; retrieval
// failures degrade to an empty context.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joescharf/coderev/internal/models"
)

// Retriever answers guidance queries against a knowledge store.
type Retriever interface {
	Retrieve(ctx context.Context, query, language, category string, topK int) ([]models.Guidance, error)
}

// Collections are the guidance categories, laid out as subdirectories of the
// data dir, each holding markdown files named after their topic.
var Collections = []string{
	"best_practices", "security_patterns", "performance_tips", "bug_patterns",
}

type document struct {
	content    string
	collection string
	topic      string
	tokens     map[string]int
}

// DirStore is a file-backed retriever: markdown guidance loaded from a data
// directory and ranked by token overlap. It trades embedding quality for
// zero external dependencies; swap in a vector-store-backed Retriever for
// semantic retrieval.
type DirStore struct {
	docs []document
}

// NewDirStore loads every collection under dataDir. Missing collection
// directories are skipped.
func NewDirStore(dataDir string) (*DirStore, error) {
	store := &DirStore{}
	for _, collection := range Collections {
		dir := filepath.Join(dataDir, collection)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read collection %s: %w", collection, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
			}
			content := string(data)
			store.docs = append(store.docs, document{
				content:    content,
				collection: collection,
				topic:      strings.TrimSuffix(entry.Name(), ".md"),
				tokens:     tokenize(content),
			})
		}
	}
	return store, nil
}

// Len returns the number of loaded documents.
func (s *DirStore) Len() int { return len(s.docs) }

// categoryCollections maps finding categories to the collections worth
// searching for them.
var categoryCollections = map[string]string{
	"bug":           "bug_patterns",
	"security":      "security_patterns",
	"performance":   "performance_tips",
	"style":         "best_practices",
	"documentation": "best_practices",
	"best_practice": "best_practices",
}

// Retrieve ranks documents by token overlap with the query. language narrows
// to documents whose topic matches; category narrows to one collection.
func (s *DirStore) Retrieve(_ context.Context, query, language, category string, topK int) ([]models.Guidance, error) {
	if topK <= 0 {
		topK = 5
	}
	collection := categoryCollections[category]

	queryTokens := tokenize(query)
	var results []models.Guidance
	for _, doc := range s.docs {
		if collection != "" && doc.collection != collection {
			continue
		}
		if language != "" && doc.topic != "" && !strings.Contains(doc.topic, language) && doc.topic != language {
			continue
		}
		d := distance(queryTokens, doc.tokens)
		if d >= 1 {
			continue
		}
		results = append(results, models.Guidance{
			Content: doc.content,
			Metadata: map[string]string{
				"collection": doc.collection,
				"topic":      doc.topic,
			},
			Distance: d,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Noop is a retriever that always returns nothing, for deployments without
// a guidance corpus.
type Noop struct{}

func (Noop) Retrieve(context.Context, string, string, string, int) ([]models.Guidance, error) {
	return nil, nil
}

func tokenize(text string) map[string]int {
	tokens := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(word) < 3 {
			continue
		}
		tokens[word]++
	}
	return tokens
}

// distance is 1 minus the fraction of query tokens present in the document;
// 0 means every query token appears, 1 means none do.
func distance(query, doc map[string]int) float64 {
	if len(query) == 0 {
		return 1
	}
	matched := 0
	for token := range query {
		if doc[token] > 0 {
			matched++
		}
	}
	return 1 - float64(matched)/float64(len(query))
}
