package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	maxImageBytes    = 10 << 20
	maxDocumentBytes = 25 << 20
)

var errTooLarge = errors.New("file is too large")

type upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// readUpload reads the multipart file field of r, limited to maxBytes. Other
// form values stay available through r.FormValue.
func readUpload(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, err
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if hdr.Size > maxBytes {
		return nil, errTooLarge
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(f, maxBytes+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > maxBytes {
		return nil, errTooLarge
	}

	ct := hdr.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(buf.Bytes())
	}
	return &upload{
		Filename:    filepath.Base(strings.ReplaceAll(hdr.Filename, "\\", "/")),
		ContentType: ct,
		Data:        buf.Bytes(),
	}, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "a file upload is required")
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// stream copies an object body to the response.
func stream(w http.ResponseWriter, body io.ReadCloser, contentType, filename string, inline bool) {
	defer body.Close()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if filename != "" {
		disposition := "attachment"
		if inline {
			disposition = "inline"
		}
		w.Header().Set("Content-Disposition", disposition+`; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	io.Copy(w, body)
}
