package fileserver

import (
	"fmt"
	"strconv"
	"strings"
)

// byteRange is an inclusive, already-clamped [start, end] span into a file
// of length size.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// rangeError signals a 416: the parsed range was entirely outside the
// file. ContentRange is the "bytes */size" header value to emit.
type rangeError struct {
	ContentRange string
}

func (e *rangeError) Error() string { return "range not satisfiable: " + e.ContentRange }

// parseRange parses a single-range "bytes=a-b", "bytes=a-", or "bytes=-n"
// header value against a file of the given size. Multipart ranges
// ("bytes=a-b,c-d") are not supported — the spec only requires single
// ranges — and are rejected as 416 the same as an out-of-bounds range,
// since this server cannot satisfy them.
func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, fmt.Errorf("unsupported range unit")
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
	}

	startStr, endStr := spec[:dash], spec[dash+1:]

	var r byteRange
	switch {
	case startStr == "" && endStr == "":
		return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}

	case startStr == "": // suffix form: -n, last min(n, size) bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		if n > size {
			n = size
		}
		if n == 0 {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		r = byteRange{start: size - n, end: size - 1}

	case endStr == "": // open form: a-
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		if start >= size {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		r = byteRange{start: start, end: size - 1}

	default: // closed form: a-b
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || start < 0 || end < start {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		if start >= size {
			return byteRange{}, &rangeError{ContentRange: fmt.Sprintf("bytes */%d", size)}
		}
		if end >= size {
			end = size - 1
		}
		r = byteRange{start: start, end: end}
	}

	return r, nil
}
