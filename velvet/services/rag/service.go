// Package rag indexes extracted document text as word-window chunks and picks
// the chunks most relevant to a question.
package rag

import (
	"context"
	"sort"
	"strings"

	"velvet/velvet/sources/psql/dao"
	"velvet/velvet/sources/psql/models"
	"velvet/velvet/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultChunkWords = 200
	defaultOverlap    = 40
	defaultTopK       = 4
	maxContextChars   = 6000
	chunkSeparator    = "\n\n---\n\n"
)

type Service struct {
	chunks     *dao.ChunkDAO
	chunkWords int
	overlap    int
	topK       int
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		chunks:     dao.NewChunkDAO(db),
		chunkWords: defaultChunkWords,
		overlap:    defaultOverlap,
		topK:       defaultTopK,
	}
}

// IndexDocument replaces the stored chunks of file with chunks of text and
// returns how many were written.
func (s *Service) IndexDocument(ctx context.Context, file *models.UploadedFile, text string) (int, error) {
	defer logging.LogDuration(ctx, "rag_index_document")()

	windows := splitWindows(text, s.chunkWords, s.overlap)
	chunks := make([]models.DocumentChunk, len(windows))
	for i, w := range windows {
		chunks[i] = models.DocumentChunk{FileID: file.ID, UserID: file.UserID, Position: i, Content: w}
	}
	if err := s.chunks.ReplaceChunks(ctx, file.ID, chunks); err != nil {
		return 0, err
	}
	logging.AppLogger.Info("Document indexed",
		zap.String("file_id", file.ID.String()), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

type scored struct {
	chunk   models.DocumentChunk
	matched int
	hits    int
}

// ContextForQuery ranks the chunks of fileIDs owned by userID by overlap with
// the query terms and joins the best ones. Unparseable ids are skipped. It
// returns "" when nothing matches.
func (s *Service) ContextForQuery(ctx context.Context, userID uuid.UUID, query string, fileIDs []string) (string, error) {
	defer logging.LogDuration(ctx, "rag_context_for_query")()

	ids := make([]uuid.UUID, 0, len(fileIDs))
	for _, raw := range fileIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", nil
	}

	chunks, err := s.chunks.ChunksForFiles(ctx, userID, ids)
	if err != nil {
		return "", err
	}

	queryTerms := map[string]struct{}{}
	for _, t := range terms(query) {
		queryTerms[t] = struct{}{}
	}
	if len(queryTerms) == 0 {
		return "", nil
	}

	var ranked []scored
	for _, c := range chunks {
		sc := scored{chunk: c}
		seen := map[string]bool{}
		for _, t := range terms(c.Content) {
			if _, ok := queryTerms[t]; !ok {
				continue
			}
			sc.hits++
			if !seen[t] {
				seen[t] = true
				sc.matched++
			}
		}
		if sc.matched > 0 {
			ranked = append(ranked, sc)
		}
	}
	// stable keeps file/position order among equal scores
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].matched != ranked[j].matched {
			return ranked[i].matched > ranked[j].matched
		}
		return ranked[i].hits > ranked[j].hits
	})
	if len(ranked) > s.topK {
		ranked = ranked[:s.topK]
	}

	var sb strings.Builder
	for _, r := range ranked {
		if sb.Len() > 0 {
			if sb.Len()+len(chunkSeparator)+len(r.chunk.Content) > maxContextChars {
				break
			}
			sb.WriteString(chunkSeparator)
		}
		sb.WriteString(r.chunk.Content)
	}
	return sb.String(), nil
}

func (s *Service) RemoveDocument(ctx context.Context, fileID uuid.UUID) error {
	if err := s.chunks.DeleteChunks(ctx, fileID); err != nil {
		return err
	}
	logging.AppLogger.Info("Document removed from index", zap.String("file_id", fileID.String()))
	return nil
}

func (s *Service) Health(ctx context.Context) string {
	if _, err := s.chunks.CountChunks(ctx); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
