// Package cli is the journalsync command-line client.
//
// Every command opens the local SQLite database, works on it offline and
// exits. Nothing reaches the server until "sync" runs, which pushes pending
// local edits and pulls remote changes through the syncer package.
//
//	journalsync login --token <jwt>
//	journalsync journal add --title "Trip"
//	journalsync content add --journal <id> --text "day one"
//	journalsync sync
//	journalsync status --remote
package cli
