package domain

// Ack is the remote acknowledgment of an applied operation.
type Ack struct {
	// Snapshot is the authoritative record returned by the remote, if any
	Snapshot []byte

	// Duplicate is set when the remote had already applied this operation ID
	Duplicate bool
}
