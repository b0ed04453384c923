package relay

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"path/filepath"
	"strings"

	// Register the sniffable image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
)

var errInvalidDataURL = errors.New("invalid data URL")

// decodeDataURL decodes a "data:<mediatype>;base64,<payload>" string and
// returns the raw payload and the declared media type.
func decodeDataURL(s string) ([]byte, string, error) {
	header, b64, ok := strings.Cut(s, ",")
	if !ok {
		return nil, "", errInvalidDataURL
	}

	mediaType := strings.TrimPrefix(header, "data:")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}

	payload, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, "", errInvalidDataURL
	}
	return payload, mediaType, nil
}

// sniffImageFormat reports the image format of the given bytes
// ("png", "jpeg", "gif"), or "" when the content is not a recognized
// image. The declared type is never trusted over the content.
func sniffImageFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}

// randomName returns a collision-resistant hex name for stored blobs.
func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sanitizeFilename strips any path components from a client-supplied
// filename.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
