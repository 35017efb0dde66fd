// Package core defines the shared language of the lookpipe system.
//
// This package contains:
//   - The error kinds surfaced to the pipeline runner (SecurityError,
//     CredentialsError, ConfigurationError, SchemaError, VolumeError)
//   - Run and task-run entities persisted by the state store
//   - The Store interface implemented by internal/state
//
// pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
