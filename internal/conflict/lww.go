package conflict

// LastWriterWins keeps whichever side was modified later. Equal timestamps
// resolve to the remote value so every device converges on the server copy.
type LastWriterWins[T any] struct{}

func (LastWriterWins[T]) Resolve(local, remote T, localTS, remoteTS int64) Resolution[T] {
	if localTS > remoteTS {
		return KeepLocal[T]{}
	}
	return KeepRemote[T]{Value: remote}
}

// Manual refuses to decide anything on its own.
type Manual[T any] struct {
	Reason string
}

func (m Manual[T]) Resolve(local, remote T, localTS, remoteTS int64) Resolution[T] {
	reason := m.Reason
	if reason == "" {
		reason = "concurrent modification"
	}
	return RequiresManualResolution[T]{Reason: reason}
}
