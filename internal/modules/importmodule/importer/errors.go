package importer

import (
	"errors"
	"fmt"
)

// Sentinel errors reported synchronously by the manager and scheduler.
var (
	ErrJobNotFound   = errors.New("import job not found")
	ErrJobConflict   = errors.New("import job is already running")
	ErrTooManyJobs   = errors.New("active job limit reached")
	ErrInvalidStatus = errors.New("operation not valid for current job status")
)

// TransientIngestError marks a failure worth retrying: network and IO
// class problems in the ingestion collaborator.
type TransientIngestError struct {
	Err error
}

func (e *TransientIngestError) Error() string {
	return fmt.Sprintf("transient ingest error: %v", e.Err)
}

func (e *TransientIngestError) Unwrap() error { return e.Err }

// PermanentIngestError marks a failure that will not improve with
// retries: corrupt or unparseable files. Never retried even when
// retries remain.
type PermanentIngestError struct {
	Err error
}

func (e *PermanentIngestError) Error() string {
	return fmt.Sprintf("permanent ingest error: %v", e.Err)
}

func (e *PermanentIngestError) Unwrap() error { return e.Err }

// Transient wraps an error as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientIngestError{Err: err}
}

// Permanent wraps an error as non-retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentIngestError{Err: err}
}

// IsPermanent reports whether err is a permanent ingest failure
func IsPermanent(err error) bool {
	var pe *PermanentIngestError
	return errors.As(err, &pe)
}
