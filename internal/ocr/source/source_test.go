package source_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ocrflow/ocrflow-backend/internal/ocr/domain"
	"github.com/ocrflow/ocrflow-backend/internal/ocr/source"
	"github.com/ocrflow/ocrflow-backend/pkg/config"
	apperrors "github.com/ocrflow/ocrflow-backend/pkg/errors"
	"github.com/ocrflow/ocrflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineFetcher(t *testing.T) {
	raw := []byte("%PDF-1.4 fake content")
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		ref     domain.SourceRef
		want    []byte
		wantErr bool
	}{
		{"plain base64", domain.SourceRef{Inline: encoded}, raw, false},
		{"data uri prefix", domain.SourceRef{Inline: "data:application/pdf;base64," + encoded}, raw, false},
		{"invalid base64", domain.SourceRef{Inline: "!!not-base64!!"}, nil, true},
		{"empty ref", domain.SourceRef{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := source.InlineFetcher{}.Fetch(context.Background(), tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDriveClient_Fetch(t *testing.T) {
	content := []byte("%PDF-1.4 drive item bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/drives/d1/items/i1/content":
			w.Write(content)
		case "/drives/d1/items/missing/content":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := source.NewDriveClient(config.SourceConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, logger.Nop())

	t.Run("downloads item content", func(t *testing.T) {
		got, err := client.Fetch(context.Background(), domain.SourceRef{DriveID: "d1", ItemID: "i1"})
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("missing item maps to not found", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), domain.SourceRef{DriveID: "d1", ItemID: "missing"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("server error is surfaced", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), domain.SourceRef{DriveID: "d1", ItemID: "broken"})
		require.Error(t, err)
		var appErr *apperrors.AppError
		require.True(t, apperrors.As(err, &appErr))
		assert.Equal(t, "DOWNLOAD_FAILED", appErr.Code)
	})

	t.Run("incomplete reference is rejected", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), domain.SourceRef{DriveID: "d1"})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
	})
}

func TestMultiFetcher_Routing(t *testing.T) {
	raw := []byte("inline bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("drive bytes"))
	}))
	defer srv.Close()

	m := source.NewMultiFetcher(source.NewDriveClient(config.SourceConfig{BaseURL: srv.URL}, logger.Nop()))

	inline, err := m.Fetch(context.Background(), domain.SourceRef{Inline: encoded})
	require.NoError(t, err)
	assert.Equal(t, raw, inline)

	drive, err := m.Fetch(context.Background(), domain.SourceRef{DriveID: "d", ItemID: "i"})
	require.NoError(t, err)
	assert.Equal(t, []byte("drive bytes"), drive)
}
