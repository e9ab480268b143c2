package media

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

const maxUploadSizeBytes = 10 << 20

// ReadFormImage pulls an optional image file out of a multipart form. The
// bool result reports whether a file was present at all; an unsupported or
// oversized file is an error.
func ReadFormImage(r *http.Request, field string) ([]byte, string, bool, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("read form file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		return nil, "", true, fmt.Errorf("read image data: %w", err)
	}
	if len(data) == 0 {
		return nil, "", true, errors.New("image file is empty")
	}
	if len(data) > maxUploadSizeBytes {
		return nil, "", true, errors.New("image file is too large")
	}

	extension := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[extension] {
		return nil, "", true, ErrUnsupportedType
	}

	// Extension alone is not trusted; the bytes must sniff as an image.
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, "", true, ErrUnsupportedType
	}

	return data, extension, true, nil
}
