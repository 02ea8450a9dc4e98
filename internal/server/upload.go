// Package server accepts out-of-band binary uploads and exposes them for
// download, producing the references carried inside routed file messages.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// UploadHandler stores multipart file uploads under a server-controlled
// directory, keyed by the sanitized original filename. Uploads of the same
// filename overwrite; there is no uniqueness enforcement on names.
type UploadHandler struct {
	dir     string
	maxSize int64
	logs    *LogDir
}

// NewUploadHandler creates the upload directory if needed.
func NewUploadHandler(dir string, maxSize int64, logs *LogDir) (*UploadHandler, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &UploadHandler{
		dir:     dir,
		maxSize: maxSize,
		logs:    logs,
	}, nil
}

// Dir returns the directory uploads are stored in, for static serving.
func (u *UploadHandler) Dir() string {
	return u.dir
}

// ServeHTTP handles POST /upload. The response carries the reference path,
// filename, and content type the client wraps into a file event.
func (u *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Multipart framing adds overhead beyond the file payload itself.
	r.Body = http.MaxBytesReader(w, r.Body, u.maxSize+64*1024)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	part, err := firstFilePart(reader)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() {
		if err := part.Close(); err != nil {
			log.Printf("Error closing multipart file: %v", err)
		}
	}()

	filename := sanitizeFilename(part.FileName())
	contentType := part.Header.Get("Content-Type")

	size, err := u.saveFile(filename, part)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || errors.Is(err, errFileTooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("File exceeds the %d byte upload limit", u.maxSize))
			return
		}
		log.Printf("File upload error: %v", err)
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}

	u.logs.Log(logNameSystem, "File uploaded: %s (%d bytes)", filename, size)

	writeJSON(w, http.StatusOK, map[string]string{
		"url":      "/uploads/" + filename,
		"filename": filename,
		"type":     contentType,
	})
}

var errFileTooLarge = errors.New("file too large")

// firstFilePart scans the multipart stream for the first part that carries a
// file, regardless of its field name.
func firstFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FileName() != "" {
			return part, nil
		}
		if err := part.Close(); err != nil {
			log.Printf("Error closing multipart field: %v", err)
		}
	}
}

// saveFile streams the part to disk, enforcing the size bound while copying.
func (u *UploadHandler) saveFile(filename string, src io.Reader) (int64, error) {
	path := filepath.Join(u.dir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating upload file: %w", err)
	}

	size, err := io.Copy(dst, io.LimitReader(src, u.maxSize+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	if size > u.maxSize {
		_ = os.Remove(path)
		return 0, errFileTooLarge
	}
	return size, nil
}

// sanitizeFilename flattens the client-supplied name to a bare file name so
// an upload can never escape the upload directory.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return "uploaded-file"
	}
	return name
}
