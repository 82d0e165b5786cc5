package fitsfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoCard reports that a keyword to patch does not exist in the target
// header. Patching never grows a header, so absent keywords stay absent.
var ErrNoCard = errors.New("keyword not present")

// PatchCard rewrites the value of an existing keyword in the primary header
// in place; the file length never changes.
func PatchCard(path, key string, value any) error {
	return patch(path, "", 0, key, value)
}

// PatchExtensionCard rewrites the value of an existing keyword in the named
// extension's header in place.
func PatchExtensionCard(path, extname string, extver int, key string, value any) error {
	return patch(path, extname, extver, key, value)
}

func patch(path, extname string, extver int, key string, value any) error {
	handle, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer handle.Close()

	header, err := findHeader(handle, extname, extver)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	padded := fmt.Sprintf("%-8s", key)
	block := make([]byte, blockSize)
	for offset := header.offset; offset < header.offset+header.size; offset += blockSize {
		if _, err := handle.ReadAt(block, offset); err != nil {
			return fmt.Errorf("scan header of %s: %w", filepath.Base(path), err)
		}
		for i := 0; i < cardsPerBlock; i++ {
			card := block[i*cardSize : (i+1)*cardSize]
			if strings.TrimSpace(string(card[:8])) == "END" {
				return fmt.Errorf("keyword %s in %s: %w", key, describeHDU(path, extname, extver), ErrNoCard)
			}
			if string(card[:8]) == padded && card[8] == '=' {
				if _, err := handle.WriteAt(formatCard(key, value, ""), offset+int64(i*cardSize)); err != nil {
					return fmt.Errorf("patch %s in %s: %w", key, filepath.Base(path), err)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("keyword %s in %s: %w", key, describeHDU(path, extname, extver), ErrNoCard)
}

func describeHDU(path, extname string, extver int) string {
	if extname == "" {
		return "primary header of " + filepath.Base(path)
	}
	return fmt.Sprintf("%s[%s,%d]", filepath.Base(path), extname, extver)
}

// headerSpan locates one HDU header within the file and carries enough of
// its keywords to step over the data that follows it.
type headerSpan struct {
	offset   int64
	size     int64
	dataSize int64
	extname  string
	extver   int
}

// findHeader walks the HDUs until it reaches the requested extension; an
// empty extname selects the primary header.
func findHeader(handle *os.File, extname string, extver int) (headerSpan, error) {
	offset := int64(0)
	primary := true
	for {
		span, err := readHeaderSpan(handle, offset)
		if err != nil {
			if errors.Is(err, io.EOF) && !primary {
				return headerSpan{}, fmt.Errorf("extension [%s,%d] not found", extname, extver)
			}
			return headerSpan{}, err
		}
		if extname == "" && primary {
			return span, nil
		}
		if strings.EqualFold(span.extname, extname) && span.extver == extver {
			return span, nil
		}
		offset = span.offset + span.size + span.dataSize
		primary = false
	}
}

// readHeaderSpan parses one header starting at offset far enough to size
// its data section.
func readHeaderSpan(handle *os.File, offset int64) (headerSpan, error) {
	span := headerSpan{offset: offset, extver: 1}
	bitpix := 0
	naxis := -1
	pcount := 0
	gcount := 1
	axes := map[int]int{}

	block := make([]byte, blockSize)
	pos := offset
	for {
		if _, err := handle.ReadAt(block, pos); err != nil {
			return span, err
		}
		pos += blockSize
		done := false
		for i := 0; i < cardsPerBlock; i++ {
			card := string(block[i*cardSize : (i+1)*cardSize])
			name := strings.TrimSpace(card[:8])
			if name == "END" {
				done = true
				break
			}
			if len(card) < 10 || card[8] != '=' {
				continue
			}
			value := strings.TrimSpace(card[10:])
			if idx := strings.Index(value, " /"); idx > 0 && !strings.HasPrefix(value, "'") {
				value = strings.TrimSpace(value[:idx])
			}
			switch {
			case name == "BITPIX":
				bitpix, _ = strconv.Atoi(value)
			case name == "NAXIS":
				naxis, _ = strconv.Atoi(value)
			case name == "PCOUNT":
				pcount, _ = strconv.Atoi(value)
			case name == "GCOUNT":
				gcount, _ = strconv.Atoi(value)
			case name == "EXTNAME":
				span.extname = parseStringValue(value)
			case name == "EXTVER":
				span.extver, _ = strconv.Atoi(value)
			case strings.HasPrefix(name, "NAXIS"):
				if n, err := strconv.Atoi(name[5:]); err == nil {
					axes[n], _ = strconv.Atoi(value)
				}
			}
		}
		if done {
			break
		}
	}
	span.size = pos - offset

	if naxis < 0 || bitpix == 0 {
		return span, fmt.Errorf("malformed header at offset %d", offset)
	}
	if naxis > 0 {
		pixels := 1
		for n := 1; n <= naxis; n++ {
			dim, ok := axes[n]
			if !ok {
				return span, fmt.Errorf("malformed header at offset %d: NAXIS%d missing", offset, n)
			}
			pixels *= dim
		}
		bytes := int64(abs(bitpix)/8) * int64(gcount) * int64(pcount+pixels)
		span.dataSize = (bytes + blockSize - 1) / blockSize * blockSize
	}
	return span, nil
}

// parseStringValue unwraps a quoted header value, tolerating a trailing
// comment after the closing quote.
func parseStringValue(value string) string {
	if strings.HasPrefix(value, "'") {
		if end := strings.Index(value[1:], "'"); end >= 0 {
			return strings.TrimSpace(value[1 : 1+end])
		}
	}
	return strings.TrimSpace(value)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
