package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusStarting, false},
		{StatusProcessing, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCanceled, true},
		{Status("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestModel_Version(t *testing.T) {
	if Model("bogus").Version() != ModelSadTalker.Version() {
		t.Error("unknown model should fall back to the default version")
	}
	if ModelWav2Lip.Version() == ModelSadTalker.Version() {
		t.Error("models should have distinct pinned versions")
	}
}

func TestConfigured(t *testing.T) {
	if NewClient().Configured() {
		t.Error("client without token should not report configured")
	}
	if !NewClient(WithToken("tok")).Configured() {
		t.Error("client with token should report configured")
	}
}

func TestSubmit_BuildsDataURIs(t *testing.T) {
	var captured predictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(predictionResponse{ID: "pred-1", Status: "starting"})
	}))
	defer srv.Close()

	c := NewClient(WithToken("tok"), WithBaseURL(srv.URL))

	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("pixels")...)
	wav := append([]byte("RIFF"), []byte("xxxxWAVE")...)

	id, err := c.Submit(context.Background(), png, wav, ModelSadTalker)
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if id != "pred-1" {
		t.Errorf("expected pred-1, got %q", id)
	}

	img, _ := captured.Input["source_image"].(string)
	if !strings.HasPrefix(img, "data:image/png;base64,") {
		t.Errorf("expected PNG data URI, got %q", img)
	}
	audio, _ := captured.Input["driven_audio"].(string)
	if !strings.HasPrefix(audio, "data:audio/wav;base64,") {
		t.Errorf("expected WAV data URI, got %q", audio)
	}
	if captured.Version != ModelSadTalker.Version() {
		t.Errorf("expected pinned sadtalker version, got %q", captured.Version)
	}
}

func TestModelInput_FieldNames(t *testing.T) {
	tests := []struct {
		model Model
		keys  []string
	}{
		{ModelSadTalker, []string{"source_image", "driven_audio"}},
		{ModelWav2Lip, []string{"face", "audio"}},
		{ModelVideoRetalking, []string{"face", "input_audio"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			input := modelInput(tt.model, "img-uri", "audio-uri")
			for _, key := range tt.keys {
				if _, ok := input[key]; !ok {
					t.Errorf("model %s input missing key %q", tt.model, key)
				}
			}
		})
	}
}

func TestPoll_OutputShapes(t *testing.T) {
	tests := []struct {
		name    string
		output  any
		wantURL string
		wantErr bool
	}{
		{"string", "https://cdn/video.mp4", "https://cdn/video.mp4", false},
		{"list", []any{"https://cdn/a.mp4", "https://cdn/b.mp4"}, "https://cdn/a.mp4", false},
		{"object_video", map[string]any{"video": "https://cdn/v.mp4"}, "https://cdn/v.mp4", false},
		{"object_output", map[string]any{"output": "https://cdn/o.mp4"}, "https://cdn/o.mp4", false},
		{"empty_string", "", "", true},
		{"empty_list", []any{}, "", true},
		{"number", float64(42), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(predictionResponse{
					ID: "pred-1", Status: "succeeded", Output: tt.output,
				})
			}))
			defer srv.Close()

			c := NewClient(WithToken("tok"), WithBaseURL(srv.URL))
			got, err := c.Poll(context.Background(), "pred-1")
			if err != nil {
				t.Fatalf("Poll() error: %v", err)
			}

			if tt.wantErr {
				if got.Error == "" {
					t.Error("expected an output error, got none")
				}
				return
			}
			if got.OutputURL != tt.wantURL {
				t.Errorf("OutputURL = %q, want %q", got.OutputURL, tt.wantURL)
			}
		})
	}
}

func TestPoll_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(predictionResponse{
			ID: "pred-1", Status: "failed", Error: "model crashed",
		})
	}))
	defer srv.Close()

	c := NewClient(WithToken("tok"), WithBaseURL(srv.URL))
	got, err := c.Poll(context.Background(), "pred-1")
	if err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Error != "model crashed" {
		t.Errorf("Error = %q, want model crashed", got.Error)
	}
}

func TestPoll_EmptyPredictionID(t *testing.T) {
	c := NewClient(WithToken("tok"))
	_, err := c.Poll(context.Background(), "")
	if !errors.Is(err, ErrPredictionIDRequired) {
		t.Errorf("expected ErrPredictionIDRequired, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(WithToken("tok"), WithBaseURL(srv.URL))
	if err := c.Cancel(context.Background(), "pred-1"); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if path != "/predictions/pred-1/cancel" || method != http.MethodPost {
		t.Errorf("unexpected cancel request %s %s", method, path)
	}
}

func TestSubmit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithToken("tok"), WithBaseURL(srv.URL))
	_, err := c.Submit(context.Background(), []byte("img"), []byte("wav"), ModelSadTalker)
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got %v", err)
	}
}
