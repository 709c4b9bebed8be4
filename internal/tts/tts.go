// Package tts synthesizes speech for text-only requests. Providers are
// tried in order (OpenAI, then ElevenLabs); when none is configured or all
// fail, a silent WAV sized to the text length is produced so the generation
// pipeline always has audio to drive.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrTextRequired is returned when Synthesize is called with empty text.
var ErrTextRequired = errors.New("tts: text is required")

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultVoice             = "alloy"
	defaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

// Service synthesizes audio from text.
type Service struct {
	openAIKey     string
	elevenLabsKey string
	voiceID       string

	openAIBaseURL     string
	elevenLabsBaseURL string

	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithOpenAIKey sets the OpenAI API key.
func WithOpenAIKey(key string) Option {
	return func(s *Service) { s.openAIKey = key }
}

// WithElevenLabsKey sets the ElevenLabs API key.
func WithElevenLabsKey(key string) Option {
	return func(s *Service) { s.elevenLabsKey = key }
}

// WithVoiceID sets the ElevenLabs voice.
func WithVoiceID(id string) Option {
	return func(s *Service) { s.voiceID = id }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithOpenAIBaseURL overrides the OpenAI endpoint.
func WithOpenAIBaseURL(url string) Option {
	return func(s *Service) { s.openAIBaseURL = url }
}

// WithElevenLabsBaseURL overrides the ElevenLabs endpoint.
func WithElevenLabsBaseURL(url string) Option {
	return func(s *Service) { s.elevenLabsBaseURL = url }
}

// NewService creates a TTS service.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		voiceID:           defaultElevenLabsVoiceID,
		openAIBaseURL:     defaultOpenAIBaseURL,
		elevenLabsBaseURL: defaultElevenLabsBaseURL,
		httpClient:        &http.Client{Timeout: 60 * time.Second},
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize converts text to speech and returns the audio bytes with their
// content type. Provider failures degrade to silent placeholder audio rather
// than failing the run.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrTextRequired
	}

	if s.openAIKey != "" {
		audio, err := s.synthesizeOpenAI(ctx, text)
		if err == nil {
			return audio, "audio/mpeg", nil
		}
		s.logger.Warn("OpenAI TTS failed, trying next provider",
			slog.String("error", err.Error()),
		)
	}

	if s.elevenLabsKey != "" {
		audio, err := s.synthesizeElevenLabs(ctx, text)
		if err == nil {
			return audio, "audio/mpeg", nil
		}
		s.logger.Warn("ElevenLabs TTS failed, falling back to silent audio",
			slog.String("error", err.Error()),
		)
	}

	return silentWAV(estimateDuration(text), 22050), "audio/wav", nil
}

// synthesizeOpenAI calls the OpenAI speech endpoint.
func (s *Service) synthesizeOpenAI(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{
		"model": "tts-1-hd",
		"voice": defaultVoice,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.openAIBaseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.openAIKey)
	req.Header.Set("Content-Type", "application/json")

	return s.doAudioRequest(req)
}

// synthesizeElevenLabs calls the ElevenLabs text-to-speech endpoint.
func (s *Service) synthesizeElevenLabs(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_monolingual_v1",
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", s.elevenLabsBaseURL, s.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.elevenLabsKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	return s.doAudioRequest(req)
}

func (s *Service) doAudioRequest(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("provider returned empty audio")
	}
	return audio, nil
}

// estimateDuration guesses speech length from word count, roughly 150 words
// per minute, never less than one second.
func estimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	d := float64(words) / 2.5
	if d < 1.0 {
		d = 1.0
	}
	return d
}

// silentWAV builds a valid 16-bit mono PCM WAV of silence.
func silentWAV(durationSec float64, sampleRate int) []byte {
	numSamples := int(float64(sampleRate) * durationSec)
	dataSize := numSamples * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))                 // chunk size
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))                  // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))                  // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))         // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))       // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))                  // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))                 // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
