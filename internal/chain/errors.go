package chain

import "errors"

// Sentinel errors shared by every flow that touches the chain. The stake and
// redemption flows classify failures with errors.Is against these.
var (
	// ErrWrongNetwork means the RPC endpoint answers for a different chain ID
	// than the one this session requires. Operations must fail fast on it
	// rather than silently submit to the wrong network.
	ErrWrongNetwork = errors.New("wrong network")

	// ErrConfirmationTimeout means a submitted transaction did not reach a
	// terminal state within the adapter's confirmation window. The transaction
	// may still confirm later; retry by re-querying the same hash, never by
	// resubmitting.
	ErrConfirmationTimeout = errors.New("confirmation timed out")

	// ErrTxReverted means the transaction reached a terminal state and failed.
	ErrTxReverted = errors.New("transaction reverted")

	// ErrTxNotFound means the queried transaction hash is unknown to the node.
	ErrTxNotFound = errors.New("transaction not found")
)
