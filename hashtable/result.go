package hashtable

// Result is the closed discriminant every hot-path operation reports.
// Contention and resize conditions are expected outcomes, not errors,
// so they travel as values rather than as error.
type Result string

const (
	// True means the operation committed (a value was found and
	// returned, a key was inserted/updated, or a key was deleted).
	True Result = "true"
	// False means the operation completed but found nothing to act
	// on: the key was absent for a get/delete.
	False Result = "false"
	// NeedsResizing means the probe window was exhausted; the caller
	// should invoke UpsizePrepare and retry.
	NeedsResizing Result = "needs-resizing"
	// TryLater means transient contention (a racing migration, a lost
	// CAS race) prevented the operation from completing; the caller
	// should retry, optionally after assisting migration.
	TryLater Result = "try-later"
	// Full means MaxBuckets was reached; this is fatal and is only
	// ever surfaced as a panic, never returned.
	Full Result = "full"
)

// SetOutcome reports what a successful Set did: whether it created a
// new entry, and the value it displaced if it did not.
type SetOutcome struct {
	CreatedNew    bool
	Updated       bool
	PreviousValue uint64
}
