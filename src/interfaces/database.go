package interfaces

import "multisig-observer/src/models"

// -----------------------------------------------------------------------------
// IJournal defines the contract for the stream diagnostics journal.
// -----------------------------------------------------------------------------

type IJournal interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveTransitions inserts a batch of stream state transitions.
	SaveTransitions(records []models.MTransitionRecord) error

	// -----------------------------------------------------------------------------

	// RecentTransitions returns up to limit transitions for a watch, newest first.
	RecentTransitions(watch string, limit int) ([]models.MTransitionRecord, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes records older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}

// -----------------------------------------------------------------------------
// IAccountExpander is implemented by journals able to resolve account
// references stored in the database.
// -----------------------------------------------------------------------------

type IAccountExpander interface {
	ExpandAccounts(watch string, entries []string) ([]string, error)
}
