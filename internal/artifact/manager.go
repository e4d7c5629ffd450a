// Package artifact manages converted audio artifacts: conversion into the
// storage directory, archival to the remote object store, and the local
// retention policy.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/voxworks/kokoro-mcp/internal/core"
	"github.com/voxworks/kokoro-mcp/internal/fsutil"
	"github.com/voxworks/kokoro-mcp/internal/metrics"
)

const mp3Extension = ".mp3"

// Log and warning formats for the artifact pipeline.
const (
	logFmtConverted            = "Converted %s to %s (%s)"
	logFmtUploaded             = "Uploaded artifact %s to %s"
	logFmtUploadFailed         = "Upload of %s failed, keeping local copy: %v"
	logFmtLocalCopyRemoved     = "Removed local copy %s after upload"
	logFmtDeleteFailed         = "Failed to remove local copy %s after upload: %v"
	logFmtWaveformRemoveFailed = "Failed to remove waveform %s: %v"
)

// ErrNoArchiveStore indicates uploads were enabled without a backing store.
var ErrNoArchiveStore = errors.New("upload enabled without an archive store")

// ManagerConfig carries the storage and archival policy for the manager.
type ManagerConfig struct {
	StorageDir        string
	UploadEnabled     bool
	DeleteAfterUpload bool
	KeyPrefix         string
	UploadBackend     string
	UploadTimeout     time.Duration
}

// Manager drives an artifact from a raw waveform to its terminal state:
// retained on disk, archived remotely, or both.
type Manager struct {
	converter core.AudioConverter
	store     core.ArchiveStore
	cfg       ManagerConfig
	met       metrics.Metrics
	log       *logger.Logger
}

// ProcessOptions carries the per-request overrides for one artifact.
type ProcessOptions struct {
	// Filename is the requested output name. A UUID name is generated when
	// empty. The name is sanitized and forced to an .mp3 extension.
	Filename string
	// DisableUpload keeps the artifact local even when uploads are enabled.
	DisableUpload bool
}

// NewManager creates the storage directory and returns a manager applying
// the given policy. The store may be nil only when uploads are disabled.
func NewManager(
	converter core.AudioConverter,
	store core.ArchiveStore,
	cfg ManagerConfig,
	met metrics.Metrics,
	log *logger.Logger,
) (*Manager, error) {
	if cfg.UploadEnabled && store == nil {
		return nil, ErrNoArchiveStore
	}

	if met == nil {
		met = metrics.Noop{}
	}

	err := fsutil.EnsureDir(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Manager{
		converter: converter,
		store:     store,
		cfg:       cfg,
		met:       met,
		log:       log,
	}, nil
}

// Process converts the waveform into a stored artifact and applies the
// configured archival policy. The waveform file is consumed: it is removed
// once conversion succeeds. Upload and deletion failures do not fail the
// request; they are reported as warnings on the result.
func (m *Manager) Process(
	ctx context.Context,
	waveformPath string,
	opts ProcessOptions,
) (*core.ArtifactResult, error) {
	filename := m.artifactFilename(opts.Filename)

	art := &core.Artifact{
		ID:        strings.TrimSuffix(filename, mp3Extension),
		LocalPath: filepath.Join(m.cfg.StorageDir, filename),
		CreatedAt: time.Now(),
		Size:      0,
		State:     core.StateCreated,
		Upload:    core.UploadStateNone,
		Locator:   "",
		Retained:  true,
	}

	err := m.convertWaveform(ctx, waveformPath, art)
	if err != nil {
		return nil, err
	}

	warnings := m.archive(ctx, art, opts.DisableUpload)
	warnings = append(warnings, m.finalize(art)...)

	validationErr := art.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	return &core.ArtifactResult{
		ID:            art.ID,
		Filename:      filename,
		LocalPath:     art.LocalPath,
		RemoteLocator: art.Locator,
		Size:          art.Size,
		State:         art.State,
		Upload:        art.Upload,
		Warnings:      warnings,
	}, nil
}

// artifactFilename normalizes the requested name into a safe .mp3 filename.
func (m *Manager) artifactFilename(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = uuid.NewString()
	}

	return fsutil.EnsureExtension(fsutil.SanitizeFilename(name), mp3Extension)
}

// convertWaveform encodes the waveform into the artifact's local path and
// removes the source waveform on success.
func (m *Manager) convertWaveform(ctx context.Context, waveformPath string, art *core.Artifact) error {
	convertErr := m.converter.Convert(ctx, waveformPath, art.LocalPath)
	if convertErr != nil {
		return fmt.Errorf("%w: %v", core.ErrConversionFailed, convertErr)
	}

	m.removeWaveform(waveformPath)

	info, statErr := os.Stat(art.LocalPath)
	if statErr != nil {
		return fmt.Errorf("%w: %v", core.ErrConversionFailed, statErr)
	}

	art.Size = info.Size()
	art.State = core.StateConverted

	m.log.Info(logFmtConverted, waveformPath, art.LocalPath, fsutil.FormatFileSize(art.Size))

	return nil
}

func (m *Manager) removeWaveform(path string) {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		m.log.Warn(logFmtWaveformRemoveFailed, path, err)
	}
}

// archive uploads the artifact when the policy asks for it. A failed upload
// downgrades the artifact instead of failing the request.
func (m *Manager) archive(ctx context.Context, art *core.Artifact, disableUpload bool) []string {
	if !m.cfg.UploadEnabled || disableUpload {
		art.State = core.StateUploadSkipped
		m.met.IncUploads(m.cfg.UploadBackend, metrics.StatusSkipped)

		return nil
	}

	locator, uploadErr := m.upload(ctx, art)
	if uploadErr != nil {
		art.State = core.StateUploadFailed
		art.Upload = core.UploadStateFailed
		m.met.IncUploads(m.cfg.UploadBackend, metrics.StatusFailed)
		m.log.Warn(logFmtUploadFailed, art.LocalPath, uploadErr)

		return []string{uploadErr.Error()}
	}

	art.State = core.StateUploaded
	art.Upload = core.UploadStateUploaded
	art.Locator = locator
	m.met.IncUploads(m.cfg.UploadBackend, metrics.StatusOK)
	m.log.Info(logFmtUploaded, art.LocalPath, locator)

	return nil
}

func (m *Manager) upload(ctx context.Context, art *core.Artifact) (string, error) {
	if m.cfg.UploadTimeout > 0 {
		uploadCtx, cancel := context.WithTimeout(ctx, m.cfg.UploadTimeout)
		defer cancel()

		ctx = uploadCtx
	}

	key := m.artifactKey(filepath.Base(art.LocalPath))

	locator, err := m.store.Store(ctx, art.LocalPath, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUploadFailed, err)
	}

	return locator, nil
}

// artifactKey places the artifact under the configured key prefix.
func (m *Manager) artifactKey(filename string) string {
	prefix := strings.Trim(m.cfg.KeyPrefix, "/")
	if prefix == "" {
		return filename
	}

	return prefix + "/" + filename
}

// finalize settles the artifact into its terminal state. The local copy is
// only ever removed after a confirmed upload; a failed removal leaves the
// artifact retained and reports a warning.
func (m *Manager) finalize(art *core.Artifact) []string {
	if m.cfg.DeleteAfterUpload && art.Upload == core.UploadStateUploaded {
		removeErr := os.Remove(art.LocalPath)
		if removeErr != nil {
			failure := fmt.Errorf("%w: %v", core.ErrDeletionFailed, removeErr)
			m.log.Warn(logFmtDeleteFailed, art.LocalPath, removeErr)
			art.State = core.StateRetained

			return []string{failure.Error()}
		}

		m.log.Info(logFmtLocalCopyRemoved, art.LocalPath)
		art.State = core.StateDeleted
		art.Retained = false
		art.LocalPath = ""

		return nil
	}

	art.State = core.StateRetained

	return nil
}
