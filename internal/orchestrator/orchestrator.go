package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/avatar-broker/internal/backend"
	"github.com/maauso/avatar-broker/internal/storage"
	"github.com/maauso/avatar-broker/internal/video"
)

// Synthesizer produces speech audio for text-only requests.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, contentType string, err error)
}

// Orchestrator drives one video record through a full generation run:
// input preparation, backend selection with fallback, submission, bounded
// polling, normalization, artifact upload, and the lifecycle transition
// that ends the run.
type Orchestrator struct {
	repo       video.Repository
	store      storage.Storage
	selector   *Selector
	poller     *Poller
	normalizer *Normalizer
	tts        Synthesizer
	logger     *slog.Logger
}

// New creates an orchestrator. The synthesizer may be nil, in which case
// text-only requests fail instead of synthesizing audio.
func New(
	repo video.Repository,
	store storage.Storage,
	selector *Selector,
	poller *Poller,
	normalizer *Normalizer,
	tts Synthesizer,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:       repo,
		store:      store,
		selector:   selector,
		poller:     poller,
		normalizer: normalizer,
		tts:        tts,
		logger:     logger,
	}
}

// Run executes one generation run for the record. The record ends in exactly
// one terminal state; errors returned here are for logging, the persisted
// record is the source of truth.
func (o *Orchestrator) Run(ctx context.Context, videoID string) error {
	rec, err := o.repo.FindByID(ctx, videoID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", videoID, err)
	}

	if err := rec.Start(); err != nil {
		if errors.Is(err, video.ErrAlreadyTerminal) {
			o.logger.Warn("skipping run for terminal record",
				slog.String("video_id", videoID),
				slog.String("status", string(rec.GetStatus())),
			)
			return nil
		}
		return fmt.Errorf("start record %s: %w", videoID, err)
	}
	if err := o.repo.Save(ctx, rec); err != nil {
		if errors.Is(err, video.ErrTerminalConflict) {
			o.logger.Warn("record went terminal before the run started",
				slog.String("video_id", videoID),
			)
			return nil
		}
		return fmt.Errorf("save record %s: %w", videoID, err)
	}

	o.logger.Info("starting generation run",
		slog.String("video_id", rec.ID),
		slog.String("user_id", rec.UserID),
		slog.String("tier", string(rec.Tier)),
	)

	spec, err := o.prepareSpec(ctx, rec)
	if err != nil {
		return o.failRecord(ctx, rec, fmt.Sprintf("prepare inputs: %v", err))
	}

	outcome := o.execute(ctx, rec, spec)

	switch outcome.State {
	case OutcomeSuccess:
		return o.completeRecord(ctx, rec, outcome)
	case OutcomeTimedOut:
		return o.failRecord(ctx, rec, fmt.Sprintf("generation timed out after %s", o.poller.cfg.Timeout))
	default:
		return o.failRecord(ctx, rec, outcome.Err.Error())
	}
}

// Fail forces the record into failed state with the run error. It is the
// recovery hook invoked when a run panics or is aborted outside the normal
// flow; a record already terminal is left untouched.
func (o *Orchestrator) Fail(ctx context.Context, videoID string, runErr error) {
	rec, err := o.repo.FindByID(ctx, videoID)
	if err != nil {
		o.logger.Error("failed to load record for failure hook",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
		return
	}

	msg := "run aborted"
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := o.failRecord(ctx, rec, msg); err != nil {
		o.logger.Error("failure hook could not persist record",
			slog.String("video_id", videoID),
			slog.String("error", err.Error()),
		)
	}
}

// prepareSpec materializes input bytes and builds the backend job spec from
// the record. Text-only requests have their audio synthesized and stored
// first, so retries reuse it.
func (o *Orchestrator) prepareSpec(ctx context.Context, rec *video.Record) (backend.JobSpec, error) {
	imageKey, ok := o.store.KeyFromURL(rec.ImageURL)
	if !ok {
		return backend.JobSpec{}, fmt.Errorf("image URL %q does not belong to this store", rec.ImageURL)
	}
	imageData, err := o.store.Download(ctx, imageKey)
	if err != nil {
		return backend.JobSpec{}, fmt.Errorf("download reference image: %w", err)
	}

	audioData, err := o.resolveAudio(ctx, rec)
	if err != nil {
		return backend.JobSpec{}, err
	}

	spec := backend.JobSpec{
		ImageData:  imageData,
		AudioData:  audioData,
		Prompt:     rec.Prompt,
		Emotion:    rec.Emotion,
		Style:      rec.Style,
		Steps:      settingInt(rec.Settings, "num_inference_steps", 50),
		Frames:     settingInt(rec.Settings, "num_frames", 129),
		Resolution: settingString(rec.Settings, "resolution", "720p"),
		Width:      settingInt(rec.Settings, "width", 0),
		Height:     settingInt(rec.Settings, "height", 0),
		Seed:       int64(settingInt(rec.Settings, "seed", 42)),
	}
	return spec, nil
}

// resolveAudio returns the driving audio bytes: the stored audio when the
// user provided one, synthesized speech otherwise.
func (o *Orchestrator) resolveAudio(ctx context.Context, rec *video.Record) ([]byte, error) {
	if rec.AudioURL != "" {
		key, ok := o.store.KeyFromURL(rec.AudioURL)
		if !ok {
			return nil, fmt.Errorf("audio URL %q does not belong to this store", rec.AudioURL)
		}
		data, err := o.store.Download(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("download audio: %w", err)
		}
		return data, nil
	}

	if o.tts == nil {
		return nil, errors.New("no audio provided and no synthesizer configured")
	}

	audio, contentType, err := o.tts.Synthesize(ctx, rec.TextInput)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	key := fmt.Sprintf("inputs/%s/audio/%s.wav", rec.UserID, rec.ID)
	url, err := o.store.Upload(ctx, key, contentType, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("store synthesized audio: %w", err)
	}
	rec.SetAudioURL(url)
	if err := o.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist audio URL: %w", err)
	}

	return audio, nil
}

// execute submits the spec to candidate backends in preference order and
// polls the first accepted submission to a terminal outcome. A submission
// failure moves on to the next candidate; once a backend accepts, its result
// is final and no further fallback happens.
func (o *Orchestrator) execute(ctx context.Context, rec *video.Record, spec backend.JobSpec) Outcome {
	candidates := o.selector.Candidates(rec.Tier)
	if len(candidates) == 0 {
		return failureOutcome(fmt.Errorf("%w: no configured backend for tier %s", backend.ErrNoBackendAvailable, rec.Tier))
	}

	var lastErr error
	for _, client := range candidates {
		handle, err := client.Submit(ctx, spec)
		if err != nil {
			o.logger.Warn("backend submission failed, trying next",
				slog.String("video_id", rec.ID),
				slog.String("backend", client.Name()),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		o.logger.Info("job submitted",
			slog.String("video_id", rec.ID),
			slog.String("backend", client.Name()),
			slog.String("handle", string(handle)),
		)

		raw, err := o.poller.Poll(ctx, client, handle)
		if err != nil {
			var timeout *PollTimeoutError
			if errors.As(err, &timeout) {
				client.Cancel(context.WithoutCancel(ctx), handle)
				o.logger.Warn("poll budget elapsed, job cancelled",
					slog.String("video_id", rec.ID),
					slog.String("backend", client.Name()),
					slog.String("handle", string(handle)),
				)
				return timeoutOutcome()
			}
			return failureOutcome(err)
		}

		return o.normalizer.Normalize(ctx, raw)
	}

	return failureOutcome(fmt.Errorf("%w: all candidates rejected submission: %v", backend.ErrNoBackendAvailable, lastErr))
}

// completeRecord uploads the artifact and transitions the record to
// completed.
func (o *Orchestrator) completeRecord(ctx context.Context, rec *video.Record, outcome Outcome) error {
	key := fmt.Sprintf("outputs/%s/videos/%s.mp4", rec.UserID, rec.ID)
	url, err := o.store.Upload(ctx, key, outcome.ContentType, bytes.NewReader(outcome.Video))
	if err != nil {
		return o.failRecord(ctx, rec, fmt.Sprintf("store output video: %v", err))
	}

	if err := rec.Complete(url, outcome.Duration); err != nil {
		if errors.Is(err, video.ErrAlreadyTerminal) {
			o.logger.Warn("record went terminal during run",
				slog.String("video_id", rec.ID),
				slog.String("status", string(rec.GetStatus())),
			)
			return nil
		}
		return fmt.Errorf("complete record %s: %w", rec.ID, err)
	}
	if err := o.repo.Save(ctx, rec); err != nil {
		if errors.Is(err, video.ErrTerminalConflict) {
			// Cancelled (or reconciled) while the run was in flight; the
			// stored state wins and the orphaned artifact is removed.
			o.logger.Warn("record went terminal during run, discarding result",
				slog.String("video_id", rec.ID),
			)
			_, _ = o.store.Delete(context.WithoutCancel(ctx), key)
			return nil
		}
		return fmt.Errorf("save completed record %s: %w", rec.ID, err)
	}

	o.logger.Info("generation run completed",
		slog.String("video_id", rec.ID),
		slog.String("output_url", url),
		slog.Float64("duration", outcome.Duration),
		slog.Float64("processing_seconds", rec.ProcessingSeconds),
	)
	return nil
}

// failRecord transitions the record to failed and persists it. A record
// already in a terminal state is left untouched.
func (o *Orchestrator) failRecord(ctx context.Context, rec *video.Record, msg string) error {
	if err := rec.Fail(msg); err != nil {
		if errors.Is(err, video.ErrAlreadyTerminal) {
			o.logger.Warn("record went terminal during run",
				slog.String("video_id", rec.ID),
				slog.String("status", string(rec.GetStatus())),
			)
			return nil
		}
		return fmt.Errorf("fail record %s: %w", rec.ID, err)
	}
	if err := o.repo.Save(context.WithoutCancel(ctx), rec); err != nil {
		if errors.Is(err, video.ErrTerminalConflict) {
			o.logger.Warn("record went terminal during run, keeping stored state",
				slog.String("video_id", rec.ID),
			)
			return nil
		}
		return fmt.Errorf("save failed record %s: %w", rec.ID, err)
	}

	o.logger.Error("generation run failed",
		slog.String("video_id", rec.ID),
		slog.String("error", msg),
	)
	return nil
}

// settingInt reads an integer setting, tolerating the float64 that JSON
// decoding produces.
func settingInt(settings map[string]any, key string, def int) int {
	v, ok := settings[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// settingString reads a string setting.
func settingString(settings map[string]any, key string, def string) string {
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	return def
}
