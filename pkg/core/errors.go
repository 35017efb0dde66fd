package core

import "fmt"

// SecurityError is returned when an identifier fails the allow-list check
// and must not be embedded in query text.
type SecurityError struct {
	Identifier string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("invalid identifier %q: only letters, digits and underscores are allowed", e.Identifier)
}

// CredentialsError is returned when credential material is missing or unreadable.
type CredentialsError struct {
	Path string
	Err  error
}

func (e *CredentialsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credentials not usable at %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("credentials not found at %q", e.Path)
}

func (e *CredentialsError) Unwrap() error { return e.Err }

// ConfigurationError is returned for malformed type descriptors and
// invalid pipeline parameters.
type ConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Key != "" {
		return fmt.Sprintf("invalid configuration for %s: %s", e.Key, msg)
	}
	return "invalid configuration: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchemaError is returned when source data does not match the configured schema.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error: column %q in table %q: %s", e.Column, e.Table, e.Reason)
	}
	return fmt.Sprintf("schema error: table %q: %s", e.Table, e.Reason)
}

// VolumeError is returned when a snapshot table holds more rows than allowed.
type VolumeError struct {
	Table string
	Rows  int64
	Limit int64
}

func (e *VolumeError) Error() string {
	return fmt.Sprintf("table %q has %d rows, above the safety limit of %d\nHint: extract it incrementally or raise safety_limit", e.Table, e.Rows, e.Limit)
}
