package fileserver

import "strings"

// mimeTable is the fixed extension->Content-Type table §4.5 requires.
// Deliberately not net/http's sniff-based DetectContentType or the
// system mime.types file — the spec pins an exact, portable table so
// responses are identical across operating systems.
var mimeTable = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".xml":  "application/xml",
	".txt":  "text/plain; charset=utf-8",
	".md":   "text/markdown; charset=utf-8",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
}

// textLikeExtensions fall back to http.default_content_type when their
// extension is unrecognized; anything else falls back to
// application/octet-stream.
var textLikeExtensions = map[string]bool{
	".txt": true, ".text": true, ".md": true, ".markdown": true,
	".log": true, ".csv": true, ".conf": true, ".cfg": true,
}

// contentType returns the Content-Type for a file name, falling back to
// defaultContentType for unknown text-like extensions and
// application/octet-stream otherwise.
func contentType(name, defaultContentType string) string {
	ext := extOf(name)
	if ct, ok := mimeTable[ext]; ok {
		return ct
	}
	if textLikeExtensions[ext] {
		if defaultContentType != "" {
			return defaultContentType
		}
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}
