package core

import "errors"

// Error taxonomy for the artifact pipeline. Fatal errors fail the request;
// the rest surface as warnings or log entries while the request succeeds.
var (
	// ErrSynthesisFailed indicates the speech backend produced no waveform.
	ErrSynthesisFailed = errors.New("synthesis failed")

	// ErrConversionFailed indicates the waveform could not be converted to
	// the delivery format. No partial output file survives this error.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrUploadFailed indicates the artifact could not be archived remotely.
	// The local copy is kept and the request still succeeds.
	ErrUploadFailed = errors.New("upload failed")

	// ErrDeletionFailed indicates a local copy scheduled for removal could
	// not be deleted. The artifact stays retained on disk.
	ErrDeletionFailed = errors.New("deletion failed")

	// ErrSweepItemFailed indicates the retention sweep could not remove one
	// aged artifact. The sweep logs it and continues with the rest.
	ErrSweepItemFailed = errors.New("sweep item failed")

	// ErrArtifactInconsistent indicates a lifecycle state that would lose
	// the only copy of an artifact.
	ErrArtifactInconsistent = errors.New("artifact state inconsistent")
)
