// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// Package fileregistry is the contract for the persistent file registry
// that owns upload metadata and ownership checks. That store is
// out-of-scope for this module (spec.md §1); this package only pins down
// the interface the HTTP surface and the file-scoped pipeline need
// against it, grounded on the teacher's internal/database lookup-by-id
// style without adopting its storage engine.
package fileregistry

import "context"

// FileInfo is the subset of registry metadata the pipeline needs.
type FileInfo struct {
	FileID   string
	UserID   string
	FileName string
}

// Registry answers ownership and enumeration questions about a user's
// uploaded files.
type Registry interface {
	// Owns reports whether fileID belongs to userID. A file that does not
	// exist at all is reported as not owned (false, nil).
	Owns(ctx context.Context, fileID, userID string) (bool, error)
	// HasFiles reports whether userID has uploaded at least one file
	// (spec.md §4.G step 3, the "no_files" short-circuit).
	HasFiles(ctx context.Context, userID string) (bool, error)
	// CountForUser returns the user's file count, for GET /stats.
	CountForUser(ctx context.Context, userID string) (int, error)
}
