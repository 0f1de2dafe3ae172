package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/viewtube/accounts/internal/common"
)

// maxUploadBytes bounds the in-memory part of multipart parsing.
const maxUploadBytes = 16 << 20

// spoolFormFile copies the named multipart file field into the upload temp
// directory and returns the spooled path. A missing field returns "" without
// error; callers decide whether the field was required. The spool file is
// handed off to the media uploader, which removes it whatever the outcome.
func (s *Server) spoolFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", fmt.Errorf("%w: reading %s file: %v", common.ErrorValidation, field, err)
	}
	defer file.Close()

	if err := os.MkdirAll(s.uploadTempDir, 0o770); err != nil {
		return "", fmt.Errorf("spool dir: %w", err)
	}

	ext := filepath.Ext(header.Filename)
	path := filepath.Join(s.uploadTempDir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("spool file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("spooling %s: %w", field, err)
	}

	return path, nil
}

// removeIfPresent cleans up spool files the service never consumed.
func removeIfPresent(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}
