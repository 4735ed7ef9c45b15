package app

import (
	"errors"
	"fmt"

	"github.com/yungbote/waifu-verifier-backend/internal/platform/gcp"
	"github.com/yungbote/waifu-verifier-backend/internal/platform/logger"
)

var (
	resolveStorageConfig = gcp.ResolveStorageConfigFromEnv
	newBucketService     = gcp.NewBucketService
)

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidConfig StorageBootstrapErrorCode = "invalid_config"
	StorageBootstrapErrorConnectFailed StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService validates the storage env before dialing so a typo in
// OBJECT_STORAGE_MODE is reported as config, not as a connection failure.
func resolveBucketService(log *logger.Logger) (gcp.BucketService, error) {
	storageCfg, err := resolveStorageConfig()
	if err != nil {
		bootErr := &StorageBootstrapError{
			Code:         StorageBootstrapErrorInvalidConfig,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        err,
		}
		log.Error("Object storage config invalid", "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}

	log.Info("Selecting object storage provider",
		"mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
	)
	bucket, err := newBucketService(log)
	if err != nil {
		bootErr := &StorageBootstrapError{
			Code:         StorageBootstrapErrorConnectFailed,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        err,
		}
		log.Error("Object storage bootstrap failed",
			"mode", storageCfg.Mode,
			"error_code", bootErr.Code,
			"error", err,
		)
		return nil, bootErr
	}
	return bucket, nil
}

func storageBootstrapErrorCode(err error) StorageBootstrapErrorCode {
	var bootErr *StorageBootstrapError
	if errors.As(err, &bootErr) && bootErr.Code != "" {
		return bootErr.Code
	}
	return StorageBootstrapErrorConnectFailed
}
