// Package report holds the error taxonomy of spec.md §7 and the
// JSON-serializable run reports every top-level command returns. The
// error types follow roboll-helmfile's pkg/app/errors.go idiom: small
// structs implementing Error() string, one per taxonomy entry, rather
// than a single generic error wrapped with string context.
package report

import "fmt"

// DownloadError marks an archive or catalogue fetch that failed after
// retries. Fatal to the current ingestion; never retried at the pipeline
// level.
type DownloadError struct {
	Source string
	Cause  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.Source, e.Cause)
}

func (e *DownloadError) Unwrap() error { return e.Cause }

// StoreError marks a disk write failure or manifest corruption. Fatal;
// surfaced to the caller with context.
type StoreError struct {
	Path  string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failed at %s: %v", e.Path, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// ParseError marks a parse failure. A single malformed profile file is
// skipped inside pkg/parsers without producing one; pkg/ingest returns a
// ParseError when a whole source directory cannot be parsed, which ends
// that ingestion.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// SquashError marks an unresolved inherits target, a cyclic inherits
// chain, or an INI tokenizer failure beyond the one recovery step. Logged
// and the single profile is skipped; ingestion continues.
type SquashError struct {
	Profile string
	Cause   error
}

func (e *SquashError) Error() string {
	return fmt.Sprintf("squash failed for %s: %v", e.Profile, e.Cause)
}

func (e *SquashError) Unwrap() error { return e.Cause }

// ConditionParseError marks an unbalanced-parenthesis compatibility
// expression. Fatal for that one expression.
type ConditionParseError struct {
	Expr  string
	Cause error
}

func (e *ConditionParseError) Error() string {
	return fmt.Sprintf("condition parse failed for %q: %v", e.Expr, e.Cause)
}

func (e *ConditionParseError) Unwrap() error { return e.Cause }
