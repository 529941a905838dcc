package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/envutil"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/qdrant"
	"github.com/yungbote/wrapped-backend/internal/services"
)

type VectorProvider string

const (
	VectorProviderNone   VectorProvider = "none"
	VectorProviderQdrant VectorProvider = "qdrant"
)

var newQdrantVectorStore = func(ctx context.Context, log *logger.Logger, cfg qdrant.Config) (services.PointIndex, error) {
	return qdrant.NewVectorStore(ctx, log, cfg)
}

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantColl    VectorProviderConfigErrorCode = "missing_qdrant_collection"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
	VectorProviderConfigErrorConnectFailed        VectorProviderConfigErrorCode = "connect_failed"
)

type VectorProviderConfigError struct {
	Code     VectorProviderConfigErrorCode
	Provider VectorProvider
	Source   string
	Cause    error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf("invalid vector provider config (code=%s provider=%q source=%q): %v", e.Code, e.Provider, e.Source, e.Cause)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider VectorProvider
	Source   string
	Qdrant   qdrant.Config
}

// resolveVectorProviderConfig picks the secondary vector index. VECTOR_PROVIDER
// wins when set; otherwise Qdrant is selected whenever QDRANT_URL is present.
func resolveVectorProviderConfig(embedDim int) (VectorProviderConfig, error) {
	source := "env"
	provider := VectorProvider(strings.ToLower(envutil.String("VECTOR_PROVIDER", "")))
	if provider == "" {
		source = "qdrant_url_default"
		provider = VectorProviderNone
		if envutil.String("QDRANT_URL", "") != "" {
			provider = VectorProviderQdrant
		}
	}

	switch provider {
	case VectorProviderNone:
		return VectorProviderConfig{Provider: provider, Source: source}, nil
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv(embedDim)
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(source, err)
		}
		return VectorProviderConfig{Provider: provider, Source: source, Qdrant: qcfg}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:     VectorProviderConfigErrorInvalidProvider,
			Provider: provider,
			Source:   source,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		}
	}
}

func mapVectorProviderConfigError(source string, err error) error {
	code := VectorProviderConfigErrorUnknownQdrantFailure
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderConfigErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
	}
	return &VectorProviderConfigError{Code: code, Provider: VectorProviderQdrant, Source: source, Cause: err}
}

// bootstrapVectorIndex connects the configured index and wraps it with
// operation metrics. It returns (nil, nil) when no provider is selected.
func bootstrapVectorIndex(ctx context.Context, log *logger.Logger, embedDim int, metrics *observability.Metrics) (services.PointIndex, error) {
	pcfg, err := resolveVectorProviderConfig(embedDim)
	if err != nil {
		return nil, err
	}
	if pcfg.Provider == VectorProviderNone {
		log.Info("Vector index disabled", "source", pcfg.Source)
		return nil, nil
	}

	log.Info(
		"Selecting vector index provider",
		"provider", pcfg.Provider,
		"source", pcfg.Source,
		"qdrant_url", pcfg.Qdrant.URL,
		"qdrant_collection", pcfg.Qdrant.Collection,
		"qdrant_vector_dim", pcfg.Qdrant.VectorDim,
	)
	idx, err := newQdrantVectorStore(ctx, log, pcfg.Qdrant)
	if err != nil {
		return nil, &VectorProviderConfigError{
			Code:     VectorProviderConfigErrorConnectFailed,
			Provider: pcfg.Provider,
			Source:   pcfg.Source,
			Cause:    err,
		}
	}
	return instrumentPointIndex(string(pcfg.Provider), idx, metrics), nil
}
