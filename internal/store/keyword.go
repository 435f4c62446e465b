package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/uqsoft/crossdock/internal/chunk"
)

const (
	// ProseStopFilterName is the registered name of the stop word filter.
	ProseStopFilterName = "prose_stop"

	// ProseAnalyzerName is the registered name of the prose analyzer.
	ProseAnalyzerName = "prose_analyzer"
)

func init() {
	_ = registry.RegisterTokenFilter(ProseStopFilterName, proseStopFilterConstructor)
}

// DefaultProseStopWords covers the high-frequency Russian and English
// words that carry no retrieval signal in operational documents.
var DefaultProseStopWords = []string{
	// English
	"a", "an", "the", "and", "or", "but", "if", "then", "else",
	"of", "to", "in", "on", "at", "by", "for", "with", "from", "as",
	"is", "are", "was", "were", "be", "been", "it", "its", "this",
	"that", "these", "those", "not", "no", "do", "does", "did",
	"can", "could", "should", "would", "will", "have", "has", "had",
	// Russian
	"и", "в", "во", "на", "не", "с", "со", "по", "что", "как",
	"это", "для", "или", "из", "к", "у", "о", "об", "от", "до",
	"при", "за", "же", "ли", "бы", "но", "а", "то", "так", "уже",
	"его", "ее", "их", "мы", "вы", "я", "он", "она", "они", "оно",
	"есть", "был", "была", "были", "быть", "чтобы", "если", "когда",
	"где", "кто", "этот", "эта", "эти", "также", "можно", "нужно",
}

// BuildStopWordMap converts a stop word list to a lookup map.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

func proseStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &proseStopFilter{stopWords: BuildStopWordMap(DefaultProseStopWords)}, nil
}

// proseStopFilter implements analysis.TokenFilter.
type proseStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *proseStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// proseIndexMapping builds the Bleve mapping: unicode word segmentation,
// lowercasing, then stop word removal.
func proseIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(ProseAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			ProseStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	indexMapping.DefaultAnalyzer = ProseAnalyzerName
	return indexMapping, nil
}

// keywordDoc is the document shape stored in Bleve.
type keywordDoc struct {
	Text string `json:"text"`
}

// keywordHit is a raw Bleve match: the chunk position and BM25 score.
type keywordHit struct {
	pos   int
	score float64
}

// keywordIndex wraps an in-memory Bleve index. Document IDs are chunk
// positions in the owning Index, encoded as decimal strings.
type keywordIndex struct {
	index bleve.Index
}

func newKeywordIndex() (*keywordIndex, error) {
	indexMapping, err := proseIndexMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, err
	}
	return &keywordIndex{index: idx}, nil
}

func (ki *keywordIndex) add(start int, chunks []chunk.Chunk) error {
	batch := ki.index.NewBatch()
	for i, c := range chunks {
		if err := batch.Index(strconv.Itoa(start+i), keywordDoc{Text: c.Text}); err != nil {
			return err
		}
	}
	return ki.index.Batch(batch)
}

func (ki *keywordIndex) search(ctx context.Context, query string, k int) ([]keywordHit, error) {
	if strings.TrimSpace(query) == "" {
		return []keywordHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")
	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k

	result, err := ki.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, err
	}

	hits := make([]keywordHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		pos, convErr := strconv.Atoi(hit.ID)
		if convErr != nil {
			continue
		}
		hits = append(hits, keywordHit{pos: pos, score: hit.Score})
	}
	return hits, nil
}

func (ki *keywordIndex) close() error {
	return ki.index.Close()
}
