// Package client provides a transport-agnostic interface for the switchboard
// service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// SwitchboardClient is the interface that all swb CLI commands use to
// communicate with the server. It is implemented by HTTPClient (default) and
// GRPCClient.
type SwitchboardClient interface {
	// Switch registry
	ListSwitches(ctx context.Context) ([]string, error)
	ListReleases(ctx context.Context, switchName string) (map[string]model.ReleaseConfig, error)
	GetRelease(ctx context.Context, switchName, release string) (*model.Release, error)
	CreateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error)
	UpdateRelease(ctx context.Context, switchName string, rel model.Release) (*model.Release, error)

	// Defect log
	RecordDefects(ctx context.Context, date string, defects []model.DefectItem) (string, error)
	GetDefectLog(ctx context.Context) (model.DefectLog, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

var (
	_ SwitchboardClient = (*HTTPClient)(nil)
	_ SwitchboardClient = (*GRPCClient)(nil)
)
