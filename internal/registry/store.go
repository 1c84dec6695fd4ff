package registry

import "context"

// Store is the reference Registry Port: SQLite owns the catalog and audit
// log, bleve owns the lexical tier. Most Port methods delegate straight to
// the SQLite registry; SearchLexical is the one method this type overrides,
// since the teacher's corpus splits storage and full-text concerns into
// separate libraries rather than one.
type Store struct {
	*SQLiteRegistry
	lexical *Lexical
}

var _ Port = (*Store)(nil)

// NewStore opens (or creates) both halves of the reference registry at the
// given directory: dbPath for the catalog/audit SQLite file, lexicalPath for
// the bleve lexical index.
func NewStore(dbPath, lexicalPath string) (*Store, error) {
	sq, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	lex, err := OpenLexical(lexicalPath)
	if err != nil {
		_ = sq.Close()
		return nil, err
	}
	return &Store{SQLiteRegistry: sq, lexical: lex}, nil
}

// UpsertProduct writes through to both the catalog and the lexical index so
// the two never drift out of sync on a single insert path.
func (s *Store) UpsertProduct(ctx context.Context, p Product) error {
	if err := s.SQLiteRegistry.UpsertProduct(ctx, p); err != nil {
		return err
	}
	return s.lexical.IndexProducts(ctx, []Product{p})
}

// SearchLexical queries the bleve index for matching document IDs and
// scores, then hydrates full Product records from SQLite.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]Hit, error) {
	ids, scores, err := s.lexical.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	products, err := s.SQLiteRegistry.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	hits := make([]Hit, 0, len(ids))
	for i, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		hits = append(hits, Hit{Product: p, Score: scores[i], Src: SourceLex})
	}
	return hits, nil
}

// Close closes both the catalog store and the lexical index.
func (s *Store) Close() error {
	lexErr := s.lexical.Close()
	dbErr := s.SQLiteRegistry.Close()
	if dbErr != nil {
		return dbErr
	}
	return lexErr
}
