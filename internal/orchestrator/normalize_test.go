package orchestrator

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/avatar-broker/internal/backend"
)

func TestNormalize_InlineBase64(t *testing.T) {
	n := NewNormalizer(nil)

	video := []byte("\x00\x00\x00\x18ftypmp42....")
	raw := backend.RawStatus{
		Status:      backend.StatusSucceeded,
		VideoBase64: base64.StdEncoding.EncodeToString(video),
		Duration:    5.4,
	}

	out := n.Normalize(context.Background(), raw)
	require.Equal(t, OutcomeSuccess, out.State)
	assert.Equal(t, video, out.Video)
	assert.Equal(t, "video/mp4", out.ContentType)
	assert.Equal(t, 5.4, out.Duration)
	assert.NoError(t, out.Err)
}

func TestNormalize_FetchesURLOutput(t *testing.T) {
	video := []byte("\x00\x00\x00\x18ftypisom....")
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		_, _ = w.Write(video)
	}))
	defer srv.Close()

	n := NewNormalizer(nil)
	raw := backend.RawStatus{Status: backend.StatusSucceeded, VideoURL: srv.URL + "/out.mp4"}

	out := n.Normalize(context.Background(), raw)
	require.Equal(t, OutcomeSuccess, out.State)
	assert.Equal(t, video, out.Video)
	assert.Equal(t, 1, fetches, "URL output is fetched exactly once")
}

func TestNormalize_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := NewNormalizer(nil)
	raw := backend.RawStatus{Status: backend.StatusSucceeded, VideoURL: srv.URL + "/gone.mp4"}

	out := n.Normalize(context.Background(), raw)
	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrMalformedOutput)
}

func TestNormalize_SuccessWithNoOutput(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{Status: backend.StatusSucceeded})

	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrMalformedOutput)
}

func TestNormalize_EmptyPayload(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{
		Status:      backend.StatusSucceeded,
		VideoBase64: "",
		VideoURL:    "",
	})
	require.Equal(t, OutcomeFailure, out.State)

	// A decodable but empty payload is rejected too.
	out = n.Normalize(context.Background(), backend.RawStatus{
		Status:      backend.StatusSucceeded,
		VideoBase64: base64.StdEncoding.EncodeToString(nil),
	})
	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrMalformedOutput)
}

func TestNormalize_BadBase64(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{
		Status:      backend.StatusSucceeded,
		VideoBase64: "not base64!!!",
	})
	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrMalformedOutput)
}

func TestNormalize_ProviderFailure(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{
		Status: backend.StatusFailed,
		Error:  "CUDA out of memory",
	})

	require.Equal(t, OutcomeFailure, out.State)
	require.ErrorIs(t, out.Err, backend.ErrProviderFailure)
	assert.Contains(t, out.Err.Error(), "CUDA out of memory")
}

func TestNormalize_ProviderFailureWithoutMessage(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{Status: backend.StatusFailed})

	require.Equal(t, OutcomeFailure, out.State)
	assert.Contains(t, out.Err.Error(), "unknown provider error")
}

func TestNormalize_RemoteCancellation(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{Status: backend.StatusCancelled})

	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrProviderFailure)
}

func TestNormalize_NonTerminalStatusRejected(t *testing.T) {
	n := NewNormalizer(nil)
	out := n.Normalize(context.Background(), backend.RawStatus{Status: backend.StatusRunning})

	require.Equal(t, OutcomeFailure, out.State)
	assert.ErrorIs(t, out.Err, backend.ErrMalformedOutput)
}

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"mp4", []byte("\x00\x00\x00\x18ftypmp42"), "video/mp4"},
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png"},
		{"jpeg", []byte("\xff\xd8\xff\xe0rest"), "image/jpeg"},
		{"wav", []byte("RIFFxxxxWAVEfmt "), "audio/wav"},
		{"unknown", []byte("garbage"), "video/mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffContentType(tt.data))
		})
	}
}
