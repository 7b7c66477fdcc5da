package constants

// DefaultMimeType is the fallback MIME type for unknown payloads
const DefaultMimeType = "application/octet-stream"

// DefaultBinaryExtension is used when a MIME type has no known extension
const DefaultBinaryExtension = ".bin"

// MimeTypeToExtension maps MIME types to their primary file extensions.
// Used when persisting base64 media payloads, whose only type hint is the
// variant's mimetype field.
var MimeTypeToExtension = map[string]string{
	// Image formats
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",

	// Video formats
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/mov":       ".mov",
	"video/x-msvideo": ".avi",
	"video/3gpp":      ".3gp",

	// Audio formats
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp3":  ".mp3",
	"audio/wav":  ".wav",
	"audio/aac":  ".aac",
	"audio/mp4":  ".m4a",

	// Document formats
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain":      ".txt",
	"application/rtf": ".rtf",
	"application/zip": ".zip",
}

// ExtensionForMimeType resolves the storage extension for a MIME type,
// falling back to the generic binary extension.
func ExtensionForMimeType(mimeType string) string {
	if ext, ok := MimeTypeToExtension[mimeType]; ok {
		return ext
	}
	return DefaultBinaryExtension
}

// MediaClassForMimeType buckets a MIME type into the size-limit classes used
// by the media store ("image", "video", "audio", "document").
func MediaClassForMimeType(mimeType string) string {
	switch {
	case len(mimeType) >= 6 && mimeType[:6] == "image/":
		return "image"
	case len(mimeType) >= 6 && mimeType[:6] == "video/":
		return "video"
	case len(mimeType) >= 6 && mimeType[:6] == "audio/":
		return "audio"
	default:
		return "document"
	}
}
