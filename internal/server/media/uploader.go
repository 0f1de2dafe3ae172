// Package media wraps the external object-storage collaborator used for
// profile images. The contract: an Uploader consumes a local temporary file
// and, success or failure, the temporary file is gone afterwards.
package media

import "context"

// Uploader sends a local file to media storage and returns its public URL.
type Uploader interface {
	// Upload stores the file at localPath and returns the URL it will be
	// served from. The local file is removed on both success and failure.
	Upload(ctx context.Context, localPath string) (string, error)
}
