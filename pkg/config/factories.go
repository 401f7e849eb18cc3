package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/audit"
	auditBadger "github.com/marmos91/cascview/pkg/audit/badger"
	auditMemory "github.com/marmos91/cascview/pkg/audit/memory"
	"github.com/marmos91/cascview/pkg/catalog"
	"github.com/marmos91/cascview/pkg/explorer"
	"github.com/marmos91/cascview/pkg/resolver"
	"github.com/marmos91/cascview/pkg/storage"
	storageFs "github.com/marmos91/cascview/pkg/storage/fs"
	storageMemory "github.com/marmos91/cascview/pkg/storage/memory"
	storageS3 "github.com/marmos91/cascview/pkg/storage/s3"
	"github.com/marmos91/cascview/pkg/table"
)

// s3BackendConfig is the decoded form of storage.s3.
type s3BackendConfig struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	KeyPrefix         string `mapstructure:"key_prefix"`
	Endpoint          string `mapstructure:"endpoint"`
	AccessKeyID       string `mapstructure:"access_key_id"`
	SecretAccessKey   string `mapstructure:"secret_access_key"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RequestsPerSecond uint   `mapstructure:"requests_per_second"`
	Burst             uint   `mapstructure:"burst"`
}

// CreateBackend creates a storage backend based on configuration.
//
// This factory function uses the Type field to determine which backend
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/storage/fs (dataset directory on disk)
//   - "memory": Uses pkg/storage/memory, optionally preloaded from a dataset directory
//   - "s3": Uses pkg/storage/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Storage configuration
//   - s3Metrics: Optional S3 request metrics (nil disables)
//
// Returns:
//   - storage.Backend: Initialized backend
//   - error: Configuration or initialization error
func CreateBackend(ctx context.Context, cfg *StorageConfig, s3Metrics storageS3.Metrics) (storage.Backend, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemBackend(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryBackend(ctx, cfg.Memory)
	case "s3":
		return createS3Backend(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
}

// createFilesystemBackend creates a backend over a dataset directory.
func createFilesystemBackend(ctx context.Context, options map[string]any) (storage.Backend, error) {
	var backendCfg storageFs.Config
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem storage config: %w", err)
	}

	backend, err := storageFs.Open(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open filesystem storage: %w", err)
	}

	logger.Info("Filesystem storage initialized: path=%s", backendCfg.Path)
	return backend, nil
}

// createMemoryBackend creates an in-memory backend. With a preload path,
// the dataset directory's manifest and objects are copied into memory and
// the directory is not touched again.
func createMemoryBackend(ctx context.Context, options map[string]any) (storage.Backend, error) {
	type memoryBackendConfig struct {
		Preload string `mapstructure:"preload"`
	}

	var backendCfg memoryBackendConfig
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory storage config: %w", err)
	}

	backend := storageMemory.New()
	if backendCfg.Preload == "" {
		return backend, nil
	}

	src, err := storageFs.Open(ctx, storageFs.Config{Path: backendCfg.Preload})
	if err != nil {
		return nil, fmt.Errorf("failed to preload memory storage: %w", err)
	}
	defer func() { _ = src.Close() }()

	backend.Manifest = src.Manifest

	hashes := make(map[catalog.Hash]struct{})
	for hash := range src.RootEntries() {
		hashes[hash] = struct{}{}
	}
	for _, e := range src.InstallEntries() {
		hashes[e.Hash] = struct{}{}
	}

	var loaded int
	for hash := range hashes {
		data, err := readObject(ctx, src, hash)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to preload %s: %w", hash, err)
		}
		backend.Put(hash, data)
		loaded++
	}

	logger.Info("Memory storage preloaded %d objects from %s", loaded, backendCfg.Preload)
	return backend, nil
}

func readObject(ctx context.Context, b storage.Backend, hash catalog.Hash) ([]byte, error) {
	r, err := b.OpenFile(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// createS3Backend creates an S3-based backend.
func createS3Backend(ctx context.Context, options map[string]any, metrics storageS3.Metrics) (storage.Backend, error) {
	// Decode the options into the config struct
	var backendCfg s3BackendConfig
	if err := mapstructure.Decode(options, &backendCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}

	// Validate required fields
	if backendCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}

	if backendCfg.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	// Set region
	configOptions = append(configOptions, awsConfig.WithRegion(backendCfg.Region))

	// Set custom endpoint if provided (for MinIO, Localstack, etc.)
	if backendCfg.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               backendCfg.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Set credentials if provided, otherwise use default credential chain
	if backendCfg.AccessKeyID != "" && backendCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			backendCfg.AccessKeyID,
			backendCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Default to 10 attempts if not specified (AWS default is 3)
	maxRetries := backendCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries // Retry for transient errors (502, 503, timeouts, etc.)
		})
	}))

	// Load AWS config
	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := awsS3.NewFromConfig(cfg, func(o *awsS3.Options) {
		// Force path-style addressing for compatibility with MinIO/Localstack
		if backendCfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Open S3 Backend (loads the manifest)
	// ========================================================================

	backend, err := storageS3.Open(ctx, storageS3.Config{
		Client:            client,
		Bucket:            backendCfg.Bucket,
		KeyPrefix:         backendCfg.KeyPrefix,
		RequestsPerSecond: backendCfg.RequestsPerSecond,
		Burst:             backendCfg.Burst,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open S3 storage: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		backendCfg.Bucket, backendCfg.Region, backendCfg.KeyPrefix)

	return backend, nil
}

// CreateAuditLog creates an audit log based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/audit/memory (ephemeral, lost on exit)
//   - "badger": Uses pkg/audit/badger (BadgerDB storage, persistent)
func CreateAuditLog(ctx context.Context, cfg *AuditConfig) (audit.Log, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return auditMemory.New(), nil
	case "badger":
		return createBadgerAuditLog(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown audit type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerAuditLog creates a BadgerDB-based persistent audit log.
func createBadgerAuditLog(ctx context.Context, options map[string]any) (audit.Log, error) {
	type badgerAuditOptions struct {
		DBPath string `mapstructure:"db_path"`
	}

	var logOpts badgerAuditOptions
	if err := mapstructure.Decode(options, &logOpts); err != nil {
		return nil, fmt.Errorf("failed to decode badger audit options: %w", err)
	}

	// Validate required fields
	if logOpts.DBPath == "" {
		return nil, fmt.Errorf("badger audit log: db_path is required")
	}

	log, err := auditBadger.Open(ctx, auditBadger.Config{DBPath: logOpts.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger audit log: %w", err)
	}
	return log, nil
}

// CreateSources returns the resolver's candidate sources. Without
// analyze_sound_files no source is configured and a pass only sniffs.
func CreateSources(cfg *ResolverConfig) []resolver.CandidateSource {
	if !cfg.AnalyzeSoundFiles {
		return nil
	}
	return []resolver.CandidateSource{
		resolver.SoundEntries{Path: cfg.SoundEntriesPath},
		resolver.SoundKit{
			KitID:      cfg.SoundKitID,
			EntryID:    cfg.SoundKitEntryID,
			NameID:     cfg.SoundKitNameID,
			WithFileID: cfg.AddFileDataID,
		},
	}
}

// KeyCheck returns a lookup over the configured key ids. It returns nil
// when no key is configured, which skips every encrypted section.
func KeyCheck(cfg *ResolverConfig) (table.KeyCheck, error) {
	ids, err := ParseKnownKeys(cfg.KnownKeys)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return func(keyID uint64) bool {
		_, ok := ids[keyID]
		return ok
	}, nil
}

// BuildOptions converts the catalog section into build options.
func BuildOptions(cfg *CatalogConfig) (catalog.BuildOptions, error) {
	locales, err := catalog.ParseLocales(cfg.Locale)
	if err != nil {
		return catalog.BuildOptions{}, err
	}
	return catalog.BuildOptions{
		Locales:         locales,
		OverrideArchive: cfg.OverrideArchive,
		PreferHighRes:   cfg.PreferHighRes,
	}, nil
}

// OpenSession wires a complete explorer session from cfg.
//
// The backend and the audit log are owned by the returned session; on
// error everything opened so far is closed.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Loaded configuration
//   - m: Metrics from InitializeMetrics (nil or zero disables)
//
// Returns:
//   - *explorer.Session: Ready session
//   - error: Configuration or initialization error
func OpenSession(ctx context.Context, cfg *Config, m *MetricsResult) (*explorer.Session, error) {
	if m == nil {
		m = &MetricsResult{}
	}

	opts, err := BuildOptions(&cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	hasKey, err := KeyCheck(&cfg.Resolver)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	backend, err := CreateBackend(ctx, &cfg.Storage, m.S3)
	if err != nil {
		return nil, err
	}

	auditLog, err := CreateAuditLog(ctx, &cfg.Audit)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	session, err := explorer.Open(explorer.Config{
		Backend:         backend,
		Audit:           auditLog,
		Options:         opts,
		Sources:         CreateSources(&cfg.Resolver),
		HasKey:          hasKey,
		ResolverMetrics: m.Resolver,
		Metrics:         m.Catalog,
	})
	if err != nil {
		_ = auditLog.Close()
		_ = backend.Close()
		return nil, err
	}
	return session, nil
}
