// Package syncer drives bidirectional synchronization between the local
// store and the server.
//
// An Orchestrator owns a set of lanes, one per entity type. Each lane pushes
// locally pending records (edits and tombstones) and then pulls the server's
// change-set since the lane's checkpoint, reconciling every remote record with
// the local copy through a conflict.Resolver. Only one pass runs at a time;
// a caller that gives up waiting gets a failed result while the pass itself
// finishes in the background.
//
// Failures never panic out of a pass: they are classified into an ErrorKind,
// collected into the SyncResult and reflected in GetSyncStatus.
package syncer
