// Package bootstrap provides dependency initialization for the broker.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/avatar-broker/internal/backend"
	"github.com/maauso/avatar-broker/internal/config"
	"github.com/maauso/avatar-broker/internal/dispatch"
	"github.com/maauso/avatar-broker/internal/orchestrator"
	"github.com/maauso/avatar-broker/internal/replicate"
	"github.com/maauso/avatar-broker/internal/runpod"
	"github.com/maauso/avatar-broker/internal/storage"
	"github.com/maauso/avatar-broker/internal/tts"
	"github.com/maauso/avatar-broker/internal/vastai"
	"github.com/maauso/avatar-broker/internal/video"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Repo         video.Repository
	Store        storage.Storage
	Orchestrator *orchestrator.Orchestrator
	Dispatcher   *dispatch.Dispatcher
	Reconciler   *video.Reconciler
	// BackendNames lists the configured backends, for the health endpoint.
	BackendNames []string
	// LocalFilesDir is set when local disk storage serves files over HTTP.
	LocalFilesDir string

	closeRepo func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, localDir, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, err := video.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	logger.Info("sqlite repository ready", slog.String("path", cfg.DatabasePath))

	clients, names, err := initBackends(cfg, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	synth := tts.NewService(logger,
		tts.WithOpenAIKey(cfg.OpenAIAPIKey),
		tts.WithElevenLabsKey(cfg.ElevenLabsAPIKey),
	)

	poller := orchestrator.NewPoller(orchestrator.PollConfig{
		Timeout:      cfg.PollTimeout(),
		Interval:     cfg.PollInterval(),
		ErrorBackoff: cfg.PollErrorBackoff(),
	}, logger)

	orch := orchestrator.New(
		repo,
		store,
		orchestrator.NewSelector(logger, clients...),
		poller,
		orchestrator.NewNormalizer(logger),
		synth,
		logger,
	)

	dispatcher := dispatch.New(orch, cfg.WorkerCount, cfg.QueueSize, logger)
	reconciler := video.NewReconciler(repo, cfg.StaleProcessingAge(), logger)

	return &Dependencies{
		Repo:          repo,
		Store:         store,
		Orchestrator:  orch,
		Dispatcher:    dispatcher,
		Reconciler:    reconciler,
		BackendNames:  names,
		LocalFilesDir: localDir,
		closeRepo:     repo.Close,
	}, nil
}

// Close releases held resources.
func (d *Dependencies) Close() error {
	if d.closeRepo != nil {
		return d.closeRepo()
	}
	return nil
}

// initStorage creates the appropriate storage backend based on configuration.
// The second return is the local files directory, empty when S3 is used.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, "", nil
	}

	localStore, err := storage.NewLocalStorage(cfg.DataDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("data_dir", cfg.DataDir),
	)
	return localStore, localStore.BaseDir(), nil
}

// initBackends builds an adapter for every configured provider.
func initBackends(cfg *config.Config, logger *slog.Logger) ([]backend.Client, []string, error) {
	var (
		clients []backend.Client
		names   []string
	)

	if cfg.RunPodEnabled() {
		rp, err := runpod.NewClient(cfg.RunPodEndpointID, runpod.WithAPIKey(cfg.RunPodAPIKey))
		if err != nil {
			return nil, nil, fmt.Errorf("create RunPod client: %w", err)
		}
		clients = append(clients, backend.NewRunPodAdapter(rp))
		names = append(names, "runpod")
	}

	if cfg.ReplicateEnabled() {
		rc := replicate.NewClient(replicate.WithToken(cfg.ReplicateAPIToken))
		adapter := backend.NewReplicateAdapter(rc).WithModel(replicate.Model(cfg.ReplicateModel))
		clients = append(clients, adapter)
		names = append(names, "replicate")
	}

	if cfg.VastAIEnabled() {
		vc := vastai.NewClient(cfg.VastAIAPIKey)
		clients = append(clients, backend.NewVastAIAdapter(vc))
		names = append(names, "vastai")
	}

	logger.Info("backends configured", slog.Any("backends", names))
	return clients, names, nil
}
