package conflict

import "github.com/dmitrijs2005/journalsync/internal/models"

// fieldUnion starts from the last-writer-wins side and fills every field the
// winner left empty with the loser's value. pick returns pointers to the
// mergeable string fields of a record.
func fieldUnion[T models.Record[T]](local, remote T, localTS, remoteTS int64, pick func(T) []*string) Resolution[T] {
	winner, loser := remote, local
	remoteWins := localTS <= remoteTS
	if !remoteWins {
		winner, loser = local, remote
	}

	merged := winner.Clone()
	changed := false
	mf, lf := pick(merged), pick(loser)
	for i := range mf {
		if *mf[i] == "" && *lf[i] != "" {
			*mf[i] = *lf[i]
			changed = true
		}
	}

	if !changed {
		if remoteWins {
			return KeepRemote[T]{Value: remote}
		}
		return KeepLocal[T]{}
	}

	meta := merged.Meta()
	meta.LastUpdated = max(localTS, remoteTS)
	if meta.ServerVersion < remote.Meta().ServerVersion {
		meta.ServerVersion = remote.Meta().ServerVersion
	}
	return Merge[T]{Merged: merged}
}

// JournalMerger merges title and description independently.
type JournalMerger struct{}

func (JournalMerger) Resolve(local, remote *models.Journal, localTS, remoteTS int64) Resolution[*models.Journal] {
	return fieldUnion(local, remote, localTS, remoteTS, func(j *models.Journal) []*string {
		return []*string{&j.Title, &j.Description}
	})
}

// ContentMerger merges the body and the media reference independently, so an
// attachment added on one device survives a text edit on another.
type ContentMerger struct{}

func (ContentMerger) Resolve(local, remote *models.Content, localTS, remoteTS int64) Resolution[*models.Content] {
	return fieldUnion(local, remote, localTS, remoteTS, func(c *models.Content) []*string {
		return []*string{&c.Type, &c.Content, &c.MediaRef}
	})
}
