package validation

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// ErrDisallowedFileType is returned when an upload is not in the allowlist.
var ErrDisallowedFileType = errors.New("file type not allowed")

// allowedExtensions lists the document and image inputs the service accepts.
var allowedExtensions = map[string]bool{
	".pdf": true, ".txt": true, ".html": true, ".htm": true, ".rtf": true,
	".doc": true, ".docx": true, ".odt": true,
	".xls": true, ".xlsx": true, ".ods": true,
	".ppt": true, ".pptx": true, ".odp": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

const magicBytesBufferSize = 512

// AllowedExtension checks the filename's extension against the allowlist.
func AllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ValidateMagicBytes sniffs the file's leading bytes and reports whether the
// detected type is plausible for a document/image conversion input. The
// reader is rewound afterwards.
func ValidateMagicBytes(reader io.ReadSeeker) (mime string, allowed bool, err error) {
	buf := make([]byte, magicBytesBufferSize)
	n, err := reader.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}
	if n == 0 {
		return "application/octet-stream", false, nil
	}
	buf = buf[:n]

	mime = detectDocumentMagicBytes(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}
	return mime, allowedSniffedType(mime), nil
}

// detectDocumentMagicBytes covers document formats http.DetectContentType
// does not name precisely.
func detectDocumentMagicBytes(buf []byte) string {
	if len(buf) >= 5 && string(buf[:5]) == "%PDF-" {
		return "application/pdf"
	}
	// OOXML and OpenDocument containers are zip files; the container type
	// is enough for admission, soffice sorts out the rest.
	if len(buf) >= 4 && buf[0] == 'P' && buf[1] == 'K' && buf[2] == 0x03 && buf[3] == 0x04 {
		return "application/zip"
	}
	// Legacy OLE2 office documents (doc/xls/ppt).
	if len(buf) >= 8 && buf[0] == 0xD0 && buf[1] == 0xCF && buf[2] == 0x11 && buf[3] == 0xE0 {
		return "application/x-ole-storage"
	}
	if len(buf) >= 5 && string(buf[:5]) == `{\rtf` {
		return "application/rtf"
	}
	return ""
}

var allowedSniffedPrefixes = []string{
	"image/",
	"text/",
}

var allowedSniffedExact = map[string]bool{
	"application/pdf":           true,
	"application/zip":           true,
	"application/x-ole-storage": true,
	"application/rtf":           true,
}

func allowedSniffedType(mime string) bool {
	// DetectContentType appends charset parameters to text types.
	if idx := strings.IndexByte(mime, ';'); idx != -1 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if allowedSniffedExact[mime] {
		return true
	}
	for _, prefix := range allowedSniffedPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}
