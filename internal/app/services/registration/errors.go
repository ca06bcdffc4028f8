package registration

import "fmt"

// BatchTerminalError is returned by ProcessBatch when the batch has already
// reached a terminal status and force was not set.
type BatchTerminalError struct {
	BatchID string
	Status  string
}

func (e *BatchTerminalError) Error() string {
	return fmt.Sprintf("batch %q is already terminal (status=%s); pass force=true to reprocess", e.BatchID, e.Status)
}

// NoActiveAccountError is returned (per item/platform) when no selectable
// account exists for a target platform; that (item, platform) pair is
// skipped rather than failing the whole batch.
type NoActiveAccountError struct {
	Platform string
}

func (e *NoActiveAccountError) Error() string {
	return fmt.Sprintf("no active account available for platform %q", e.Platform)
}
