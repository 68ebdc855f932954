package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const sniffLen = 3072

const genericContentType = "application/octet-stream"

// detectContentType keeps a declared content type and sniffs the leading
// bytes otherwise. The returned reader yields the full content.
func detectContentType(r io.Reader, declared string) (io.Reader, string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != genericContentType {
		return r, declared, nil
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	header = header[:n]
	if n == 0 {
		return nil, "", ErrEmptyFile
	}

	detected := mimetype.Detect(header).String()

	if rs, ok := r.(io.ReadSeeker); ok {
		if _, err := rs.Seek(0, io.SeekStart); err == nil {
			return rs, detected, nil
		}
	}
	return io.MultiReader(bytes.NewReader(header), r), detected, nil
}
