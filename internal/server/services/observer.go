// Package services holds the server-side sync logic between the HTTP
// handlers and the record repositories.
package services

// Observer receives sync counters. *metrics.Metrics implements it.
type Observer interface {
	AddUploaded(entity string, n int)
	AddDeleted(entity string, n int)
	AddChangeSet(entity string, changes, deletions int)
	AddMediaBytes(n int64)
}

type nopObserver struct{}

func (nopObserver) AddUploaded(string, int)       {}
func (nopObserver) AddDeleted(string, int)        {}
func (nopObserver) AddChangeSet(string, int, int) {}
func (nopObserver) AddMediaBytes(int64)           {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
