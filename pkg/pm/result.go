package pm

import "fmt"

// InstallError is a per-package failure recorded during install or remove.
// Non-fatal errors are collected and the operation continues; a fatal error
// stops the adapter's install loop.
type InstallError struct {
	Package string
	Message string
	Fatal   bool
}

func (e InstallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Package, e.Message)
}

// InstallResult accumulates the outcome of one install, update, or remove
// operation. It is never discarded on partial failure: whatever succeeded is
// reported alongside the errors.
type InstallResult struct {
	Installed []string
	Updated   []string
	Removed   []string
	Skipped   []string // already present, idempotent no-op
	Errors    []InstallError
}

// Merge appends another result's lists into r.
func (r *InstallResult) Merge(other *InstallResult) {
	if other == nil {
		return
	}
	r.Installed = append(r.Installed, other.Installed...)
	r.Updated = append(r.Updated, other.Updated...)
	r.Removed = append(r.Removed, other.Removed...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Failed reports whether any per-package errors were recorded.
func (r *InstallResult) Failed() bool { return len(r.Errors) > 0 }

// Fatal reports whether any recorded error was marked fatal.
func (r *InstallResult) Fatal() bool {
	for _, e := range r.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}
