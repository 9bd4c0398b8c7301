// Package conflict decides how to reconcile a local and a remote version of
// the same record. Resolvers are pure: they look at the two values and their
// timestamps and return a Resolution without touching any store.
package conflict

// Resolution is a closed set of outcomes. Callers switch over the concrete
// types KeepLocal, KeepRemote, Merge and RequiresManualResolution.
type Resolution[T any] interface {
	resolution()
}

// KeepLocal discards the remote value.
type KeepLocal[T any] struct{}

// KeepRemote adopts the remote value.
type KeepRemote[T any] struct {
	Value T
}

// Merge adopts a combined value; it should be uploaded again.
type Merge[T any] struct {
	Merged T
}

// RequiresManualResolution keeps the local value until a user decides.
type RequiresManualResolution[T any] struct {
	Reason string
}

func (KeepLocal[T]) resolution()                {}
func (KeepRemote[T]) resolution()               {}
func (Merge[T]) resolution()                    {}
func (RequiresManualResolution[T]) resolution() {}

// Resolver picks a Resolution for one record. localTS and remoteTS are the
// last-modified instants in epoch milliseconds.
type Resolver[T any] interface {
	Resolve(local, remote T, localTS, remoteTS int64) Resolution[T]
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc[T any] func(local, remote T, localTS, remoteTS int64) Resolution[T]

func (f ResolverFunc[T]) Resolve(local, remote T, localTS, remoteTS int64) Resolution[T] {
	return f(local, remote, localTS, remoteTS)
}
