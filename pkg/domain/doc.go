/*
Package domain contains the core models of the analysis engine.

It defines the inputs of a run, the per-category task records and the
payloads the scoring service results are normalized into. This package is
kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - AnalysisContext: the immutable user inputs that parameterize a run.
  - Task: the lifecycle record of one category (status, progress, error, result).
  - TaskPatch and Merge: the only way a task record changes.
  - ResultSet: the read model that presentation layers consume.
*/
package domain
