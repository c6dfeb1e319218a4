package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	apperrors "github.com/ocrflow/ocrflow-backend/pkg/errors"
)

// Fetcher resolves a file's source reference to its raw PDF bytes
type Fetcher interface {
	Fetch(ctx context.Context, ref domain.SourceRef) ([]byte, error)
}

// InlineFetcher decodes base64 payloads carried in the batch request itself.
// Data URI prefixes ("data:application/pdf;base64,") are tolerated.
type InlineFetcher struct{}

// Fetch implements Fetcher
func (InlineFetcher) Fetch(ctx context.Context, ref domain.SourceRef) ([]byte, error) {
	if !ref.IsInline() {
		return nil, apperrors.BadRequest("file has no inline payload")
	}

	payload := ref.Inline
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid base64 payload: %v", err))
	}
	return data, nil
}

// MultiFetcher routes inline references to the inline decoder and drive
// references to the remote store client.
type MultiFetcher struct {
	Inline Fetcher
	Drive  Fetcher
}

// NewMultiFetcher builds the standard routing fetcher
func NewMultiFetcher(drive Fetcher) *MultiFetcher {
	return &MultiFetcher{Inline: InlineFetcher{}, Drive: drive}
}

// Fetch implements Fetcher
func (m *MultiFetcher) Fetch(ctx context.Context, ref domain.SourceRef) ([]byte, error) {
	if ref.IsInline() {
		return m.Inline.Fetch(ctx, ref)
	}
	if m.Drive == nil {
		return nil, apperrors.Internal("no document store client configured")
	}
	return m.Drive.Fetch(ctx, ref)
}
