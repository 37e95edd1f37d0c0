package interfaces

import "multisig-observer/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defining the interface for sharing data with local clients (Server/Push).
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// -----------------------------------------------------------------------------
	// Broadcast pushes one event to connected listeners.
	Broadcast(event models.MWatchEvent)

	// -----------------------------------------------------------------------------
	// UpdateWatchState replaces the served state of one watch without broadcasting
	UpdateWatchState(state models.MWatchState)

	// -----------------------------------------------------------------------------
	// RemoveWatch drops a watch from the served state
	RemoveWatch(name string)

	// -----------------------------------------------------------------------------
	// Start the server
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
