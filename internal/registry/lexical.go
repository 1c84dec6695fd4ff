package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// Lexical wraps a bleve full-text index over the product catalog. It is the
// implementation of the Retrieval Router's lexical tier: every Product is
// indexed as one document over its composed searchable text, and Search
// returns hits carrying bleve's relevance score.
type Lexical struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

type lexicalDoc struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Manufacturer string `json:"manufacturer"`
	Composition  string `json:"composition"`
}

// OpenLexical opens or creates the lexical index at path. An empty path
// creates an in-memory index, used by tests and by `--disable-vector`
// deployments that still want fast lexical search without persistence.
func OpenLexical(path string) (*Lexical, error) {
	m, err := buildMapping()
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, fmt.Errorf("open lexical index: %w", err))
	}

	return &Lexical{index: idx, path: path}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = "en"
	return m, nil
}

// IndexProducts (re)indexes a batch of products, keyed by product ID.
func (l *Lexical) IndexProducts(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.index.NewBatch()
	for _, p := range products {
		doc := lexicalDoc{
			Code:         p.Code,
			Name:         p.Name,
			Manufacturer: p.Manufacturer,
			Composition:  p.Composition,
		}
		if err := batch.Index(p.ID, doc); err != nil {
			return verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, fmt.Errorf("index product %s: %w", p.ID, err))
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, fmt.Errorf("commit batch: %w", err))
	}
	return nil
}

// Search runs the lexical tier: a multi-field match query ranked by bleve's
// built-in BM25-derived score, renormalized to [0,1] by dividing by the top
// hit's raw score (bleve scores are unbounded above).
func (l *Lexical) Search(ctx context.Context, query string, limit int) ([]string, []float64, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, nil, verrors.Wrap(verrors.ErrCodeLexicalIndexFailed, err)
	}
	if len(result.Hits) == 0 {
		return nil, nil, nil
	}

	top := result.Hits[0].Score
	if top <= 0 {
		top = 1
	}

	ids := make([]string, 0, len(result.Hits))
	scores := make([]float64, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
		s := hit.Score / top
		if s > 1 {
			s = 1
		}
		scores = append(scores, s)
	}
	return ids, scores, nil
}

// Close closes the underlying bleve index.
func (l *Lexical) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Close()
}
