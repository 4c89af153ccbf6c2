package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/hybrid-retrieval/internal/core/domain"
)

// Splitter cuts NFC-normalized text into fixed-size, overlapping windows of
// code points. Chunk i starts at i*(size-overlap); only the last chunk may be
// shorter than size.
type Splitter struct {
	MinLength int
}

func NewSplitter(minLength int) *Splitter {
	if minLength <= 0 {
		minLength = domain.MinContentLength
	}
	return &Splitter{MinLength: minLength}
}

// Normalize applies the canonical composition every offset is measured against.
func Normalize(text string) string {
	return norm.NFC.String(text)
}

func (s *Splitter) Chunk(tenantID, documentID, text string, size, overlap int) ([]domain.DocumentChunk, error) {
	if size <= 0 {
		return nil, &domain.ChunkingError{
			Reason: domain.ChunkingInvalidParameters,
			Detail: fmt.Sprintf("chunk size must be positive, got %d", size),
		}
	}
	if overlap < 0 || overlap >= size {
		return nil, &domain.ChunkingError{
			Reason: domain.ChunkingInvalidParameters,
			Detail: fmt.Sprintf("overlap must be in [0, %d), got %d", size, overlap),
		}
	}

	normalized := Normalize(text)
	cleaned := strings.TrimSpace(normalized)
	if cleaned == "" {
		return nil, &domain.ChunkingError{Reason: domain.ChunkingEmptyInput}
	}
	if n := utf8.RuneCountInString(cleaned); n < s.MinLength {
		return nil, &domain.ChunkingError{
			Reason:  domain.ChunkingBelowMinimumLength,
			Length:  n,
			Minimum: s.MinLength,
		}
	}

	runes := []rune(normalized)
	step := size - overlap
	out := make([]domain.DocumentChunk, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		index := len(out)
		out = append(out, domain.DocumentChunk{
			ID:         domain.ChunkID(documentID, index),
			TenantID:   tenantID,
			DocumentID: documentID,
			ChunkIndex: index,
			Content:    string(runes[start:end]),
			StartChar:  start,
			EndChar:    end,
		})
		if end == len(runes) {
			break
		}
	}
	return out, nil
}
