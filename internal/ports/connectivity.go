package ports

// Connectivity reports the current network state.
type Connectivity interface {
	Online() bool
}
