package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/metal/internal/config"
	"github.com/imamik/metal/internal/kube"
	"github.com/imamik/metal/internal/platform/hcloud"
	"github.com/imamik/metal/internal/platform/s3"
	"github.com/imamik/metal/internal/provisioning"
	"github.com/imamik/metal/internal/runner"
	"github.com/imamik/metal/internal/store/rdb"
	"github.com/imamik/metal/internal/util/keygen"
)

// Factory function variables - can be replaced in tests.
var (
	loadConfig = config.Load
	newDeps    = buildDeps
	openDB     = rdb.OpenFromURL
)

// buildDeps connects to the database, the management cluster and, when
// configured, the manifest archive. The returned func releases them.
func buildDeps(ctx context.Context, cfg *config.Config) (*provisioning.Deps, func(), error) {
	logger := log.FromContext(ctx)

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	closeDB := func() { closeQuietly(db) }

	mgmt, err := kube.NewGateway(cfg.ManagementKubeconfig, logger)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	timeouts := cfg.Timeouts
	if timeouts == nil {
		timeouts = config.LoadTimeouts()
	}
	exec := runner.NewExecRunner()

	deps := &provisioning.Deps{
		Store:      rdb.New(db),
		Management: mgmt,
		Connect:    kube.NewConnector(logger),
		Runner:     exec,
		Cloud:      hcloud.NewFactory(hcloud.WithTimeouts(timeouts)),
		Keys: &keygen.Generator{
			Runner: exec,
			Binary: cfg.Tools.SSHKeygen,
		},
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
		Config:     cfg,
		Timeouts:   timeouts,
	}

	if cfg.Audit.Enabled() {
		client, err := s3.NewClient(ctx, s3.Options{
			Endpoint:  cfg.Audit.Endpoint,
			Region:    cfg.Audit.Region,
			AccessKey: cfg.Audit.AccessKey,
			SecretKey: cfg.Audit.SecretKey,
		})
		if err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("failed to create archive client: %w", err)
		}
		deps.Archive = s3.NewManifestArchive(client, cfg.Audit.Bucket)
	}

	return deps, closeDB, nil
}

func closeQuietly(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
