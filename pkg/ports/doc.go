/*
Package ports defines the driven ports (interfaces) of the advisor engine.

These interfaces decouple the session layer from external implementations, so
analyses can be persisted to memory, files or Redis and coordinated across
replicas.

# Key Interfaces

  - SnapshotStore: persists and loads the result set of a session.
  - DistributedLocker: distributed locking for concurrent session access.
  - Analyzer: the operations the HTTP and MCP adapters drive.
*/
package ports
