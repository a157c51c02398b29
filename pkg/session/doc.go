/*
Package session manages the analyses served by a process.

The Manager maps session IDs to live engines, persists every accepted
snapshot through a ports.SnapshotStore and revives persisted sessions on
demand. Store access is serialized per session with reference-counted local
locks and, across replicas, an optional ports.DistributedLocker.
*/
package session
