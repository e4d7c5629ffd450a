package core

import "time"

// UploadState tracks whether an artifact has been archived remotely.
type UploadState string

const (
	// UploadStateNone is the initial state before any upload attempt.
	UploadStateNone UploadState = "not_uploaded"
	// UploadStateUploaded means the artifact was stored remotely.
	UploadStateUploaded UploadState = "uploaded"
	// UploadStateFailed means an upload was attempted and failed.
	UploadStateFailed UploadState = "upload_failed"
)

// LifecycleState names the stages an artifact moves through. Retained and
// Deleted are terminal.
type LifecycleState string

const (
	StateCreated       LifecycleState = "created"
	StateConverted     LifecycleState = "converted"
	StateUploaded      LifecycleState = "uploaded"
	StateUploadSkipped LifecycleState = "upload_skipped"
	StateUploadFailed  LifecycleState = "upload_failed"
	StateRetained      LifecycleState = "retained"
	StateDeleted       LifecycleState = "deleted"
)

// Artifact is one synthesized, converted audio file and its lifecycle state.
// The record lives only for the duration of a request; the filesystem is the
// sole persistence of artifacts.
type Artifact struct {
	ID        string
	LocalPath string
	CreatedAt time.Time
	Size      int64
	State     LifecycleState
	Upload    UploadState
	Locator   string
	Retained  bool
}

// Validate enforces the data-loss guard: an artifact may only lose its local
// copy after a confirmed upload, and a locator is present exactly when the
// upload succeeded.
func (a *Artifact) Validate() error {
	if !a.Retained && a.Upload != UploadStateUploaded {
		return ErrArtifactInconsistent
	}

	if (a.Locator != "") != (a.Upload == UploadStateUploaded) {
		return ErrArtifactInconsistent
	}

	return nil
}

// ArtifactResult is the terminal outcome of processing one waveform.
// LocalPath is empty only when the artifact was deleted after a confirmed
// upload; RemoteLocator is set exactly when the upload succeeded. Warnings
// carry non-fatal failures (upload, deletion) in human-readable form.
type ArtifactResult struct {
	ID            string
	Filename      string
	LocalPath     string
	RemoteLocator string
	Size          int64
	State         LifecycleState
	Upload        UploadState
	Warnings      []string
}
