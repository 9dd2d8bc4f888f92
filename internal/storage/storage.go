// Package storage resolves pipeline locations. Relative paths are placed
// under the root of the configured run_type, and s3:// locations are
// mirrored through a local workspace so the dataio formats only ever see
// local files.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapdq/internal/dataio"
	"github.com/leapstack-labs/leapdq/internal/dataset"
)

// Run types.
const (
	RunLocal      = "local"
	RunEMR        = "emr"
	RunDatabricks = "databricks"
	RunAK8S       = "ak8s"
)

// platformRoots is the root prefix of relative paths per run type.
var platformRoots = map[string]string{
	RunLocal:      "",
	RunEMR:        "",
	RunDatabricks: "/dbfs/",
	RunAK8S:       "",
}

// RootPath returns the root prefix for runType. Unknown run types have no
// prefix.
func RootPath(runType string) string {
	return platformRoots[strings.ToLower(runType)]
}

// Config configures a Resolver.
type Config struct {
	RunType      string
	WorkspaceDir string
	S3           S3Config
}

// Resolver reads and writes datasets at pipeline locations.
type Resolver struct {
	root      string
	workspace string
	objects   ObjectStore
	logger    *slog.Logger
}

// NewResolver creates a resolver. objects may be nil when no s3 locations
// are used. If logger is nil, a discard logger is used.
func NewResolver(cfg Config, objects ObjectStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workspace := cfg.WorkspaceDir
	if workspace == "" {
		workspace = filepath.Join(os.TempDir(), "leapdq")
	}
	return &Resolver{
		root:      RootPath(cfg.RunType),
		workspace: workspace,
		objects:   objects,
		logger:    logger,
	}
}

// Resolve prefixes relative local paths with the run type root.
func (r *Resolver) Resolve(p string) string {
	if p == "" || r.root == "" || IsRemote(p) || filepath.IsAbs(p) || strings.HasPrefix(p, r.root) {
		return p
	}
	return r.root + p
}

// Join joins location elements, keeping the s3:// scheme intact.
func Join(base string, elem ...string) string {
	if IsRemote(base) {
		parts := append([]string{strings.TrimSuffix(base, "/")}, elem...)
		return strings.Join(parts, "/")
	}
	return filepath.Join(append([]string{base}, elem...)...)
}

// Read loads the dataset at location.
func (r *Resolver) Read(ctx context.Context, fileType, location string, opts dataio.Options) (*dataset.Dataset, error) {
	if !dataio.IsFileFormat(fileType) || !IsRemote(location) {
		if dataio.IsFileFormat(fileType) {
			location = r.Resolve(location)
		}
		return dataio.Read(ctx, fileType, location, opts)
	}

	obj, err := ParseObjectURL(location)
	if err != nil {
		return nil, err
	}
	store, err := r.store()
	if err != nil {
		return nil, err
	}
	keys, err := store.List(ctx, obj.Bucket, obj.Key)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", location, err)
	}
	keys = underPrefix(keys, obj.Key)
	if len(keys) == 0 {
		return nil, fmt.Errorf("no objects at %s", location)
	}

	local := r.mirror(obj)
	if err := os.RemoveAll(local); err != nil {
		return nil, err
	}
	for _, key := range keys {
		dst := local
		if key != obj.Key {
			dst = filepath.Join(local, filepath.FromSlash(strings.TrimPrefix(strings.TrimPrefix(key, obj.Key), "/")))
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
		if err := store.Download(ctx, obj.Bucket, key, dst); err != nil {
			return nil, fmt.Errorf("download s3://%s/%s: %w", obj.Bucket, key, err)
		}
	}
	r.logger.Debug("mirrored objects", "location", location, "objects", len(keys), "path", local)
	return dataio.Read(ctx, fileType, local, opts)
}

// Write stores ds at location honoring the write mode in opts.
func (r *Resolver) Write(ctx context.Context, ds *dataset.Dataset, fileType, location string, opts dataio.Options) error {
	if !dataio.IsFileFormat(fileType) || !IsRemote(location) {
		if dataio.IsFileFormat(fileType) {
			location = r.Resolve(location)
		}
		return dataio.Write(ctx, ds, fileType, location, opts)
	}

	mode, err := opts.Mode()
	if err != nil {
		return err
	}
	obj, err := ParseObjectURL(location)
	if err != nil {
		return err
	}
	store, err := r.store()
	if err != nil {
		return err
	}
	keys, err := store.List(ctx, obj.Bucket, obj.Key)
	if err != nil {
		return fmt.Errorf("list %s: %w", location, err)
	}
	keys = underPrefix(keys, obj.Key)
	exists := len(keys) > 0

	switch mode {
	case dataio.ErrorMode:
		if exists {
			return fmt.Errorf("%s: %w", location, dataio.ErrExists)
		}
	case dataio.Ignore:
		if exists {
			r.logger.Info("output exists, skipping write", "location", location)
			return nil
		}
	case dataio.Overwrite:
		for _, key := range keys {
			if err := store.Remove(ctx, obj.Bucket, key); err != nil {
				return fmt.Errorf("remove s3://%s/%s: %w", obj.Bucket, key, err)
			}
		}
		exists = false
	}

	local := r.mirror(obj)
	if err := os.RemoveAll(local); err != nil {
		return err
	}
	before := make(map[string]bool)
	if exists {
		// appended part files are numbered after the existing ones
		if err := os.MkdirAll(local, 0o755); err != nil {
			return err
		}
		for _, key := range keys {
			name := pathBase(key)
			if err := os.WriteFile(filepath.Join(local, name), nil, 0o600); err != nil {
				return err
			}
			before[name] = true
		}
	}

	localOpts := dataio.Options{}
	for k, v := range opts {
		localOpts[k] = v
	}
	localOpts["mode"] = string(dataio.Append)
	if err := dataio.Write(ctx, ds, fileType, local, localOpts); err != nil {
		return err
	}

	entries, err := os.ReadDir(local)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || before[e.Name()] {
			continue
		}
		key := strings.TrimSuffix(obj.Key, "/") + "/" + e.Name()
		if err := store.Upload(ctx, obj.Bucket, key, filepath.Join(local, e.Name())); err != nil {
			return fmt.Errorf("upload s3://%s/%s: %w", obj.Bucket, key, err)
		}
		r.logger.Debug("uploaded part file", "bucket", obj.Bucket, "key", key)
	}
	return nil
}

func (r *Resolver) store() (ObjectStore, error) {
	if r.objects == nil {
		return nil, fmt.Errorf("s3 locations require s3 settings (endpoint, access_key, secret_key)")
	}
	return r.objects, nil
}

func (r *Resolver) mirror(obj ObjectURL) string {
	return filepath.Join(r.workspace, "s3", obj.Bucket, filepath.FromSlash(obj.Key))
}

// underPrefix keeps the keys equal to prefix or below it as a directory.
func underPrefix(keys []string, prefix string) []string {
	dir := strings.TrimSuffix(prefix, "/") + "/"
	out := keys[:0]
	for _, k := range keys {
		if k == prefix || strings.HasPrefix(k, dir) {
			out = append(out, k)
		}
	}
	return out
}

func pathBase(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
