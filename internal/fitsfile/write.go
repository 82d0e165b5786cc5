package fitsfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// Primary describes the first HDU for Write. Uint8 optionally places image
// data directly in the primary HDU, which is how mask files are laid out.
type Primary struct {
	Cards  []Card
	Uint8  []uint8
	Width  int
	Height int
}

// Image describes one IMAGE extension. Exactly one of Int16 or Float32
// carries the pixel data; leaving both nil (with zero dimensions) emits a
// header-only extension, which is how headerlet WCS snapshots are stored.
type Image struct {
	Name    string
	Ver     int
	Width   int
	Height  int
	Int16   []int16
	Float32 []float32
	Cards   []Card
}

// Column is one member-table column: character (Strings) or logical (Bools).
type Column struct {
	Name    string
	Width   int
	Strings []string
	Bools   []bool
}

// Table describes one BINTABLE extension.
type Table struct {
	Name    string
	Columns []Column
	Cards   []Card
}

// Write emits a minimal standard-conforming FITS file: primary HDU, then
// IMAGE extensions, then BINTABLE extensions.
func Write(path string, primary Primary, images []Image, tables []Table) error {
	var buf bytes.Buffer

	if err := writePrimary(&buf, primary, len(images)+len(tables) > 0); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, image := range images {
		if err := writeImage(&buf, image); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	for _, table := range tables {
		if err := writeTable(&buf, table); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writePrimary(buf *bytes.Buffer, primary Primary, extend bool) error {
	cards := []Card{{Key: "SIMPLE", Value: true, Comment: "conforms to FITS standard"}}
	if primary.Uint8 != nil {
		if len(primary.Uint8) != primary.Width*primary.Height {
			return fmt.Errorf("primary data is %d values, dimensions say %d", len(primary.Uint8), primary.Width*primary.Height)
		}
		cards = append(cards,
			Card{Key: "BITPIX", Value: 8},
			Card{Key: "NAXIS", Value: 2},
			Card{Key: "NAXIS1", Value: primary.Width},
			Card{Key: "NAXIS2", Value: primary.Height},
		)
	} else {
		cards = append(cards,
			Card{Key: "BITPIX", Value: 8},
			Card{Key: "NAXIS", Value: 0},
		)
	}
	if extend {
		cards = append(cards, Card{Key: "EXTEND", Value: true})
	}
	cards = append(cards, primary.Cards...)
	writeHeader(buf, cards)

	if primary.Uint8 != nil {
		buf.Write(primary.Uint8)
		padBlock(buf)
	}
	return nil
}

func writeImage(buf *bytes.Buffer, image Image) error {
	pixels := image.Width * image.Height
	var bitpix int
	headerOnly := false
	switch {
	case image.Int16 == nil && image.Float32 == nil:
		if pixels != 0 {
			return fmt.Errorf("image %s has dimensions but no pixel data", image.Name)
		}
		bitpix = 8
		headerOnly = true
	case image.Int16 != nil && image.Float32 == nil:
		if len(image.Int16) != pixels {
			return fmt.Errorf("image %s is %d values, dimensions say %d", image.Name, len(image.Int16), pixels)
		}
		bitpix = 16
	case image.Float32 != nil && image.Int16 == nil:
		if len(image.Float32) != pixels {
			return fmt.Errorf("image %s is %d values, dimensions say %d", image.Name, len(image.Float32), pixels)
		}
		bitpix = -32
	default:
		return fmt.Errorf("image %s needs exactly one pixel type", image.Name)
	}

	ver := image.Ver
	if ver == 0 {
		ver = 1
	}
	cards := []Card{
		{Key: "XTENSION", Value: "IMAGE"},
		{Key: "BITPIX", Value: bitpix},
	}
	if headerOnly {
		cards = append(cards, Card{Key: "NAXIS", Value: 0})
	} else {
		cards = append(cards,
			Card{Key: "NAXIS", Value: 2},
			Card{Key: "NAXIS1", Value: image.Width},
			Card{Key: "NAXIS2", Value: image.Height},
		)
	}
	cards = append(cards,
		Card{Key: "PCOUNT", Value: 0},
		Card{Key: "GCOUNT", Value: 1},
		Card{Key: "EXTNAME", Value: image.Name},
		Card{Key: "EXTVER", Value: ver},
	)
	cards = append(cards, image.Cards...)
	writeHeader(buf, cards)

	switch {
	case headerOnly:
	case image.Int16 != nil:
		_ = binary.Write(buf, binary.BigEndian, image.Int16)
		padBlock(buf)
	default:
		_ = binary.Write(buf, binary.BigEndian, image.Float32)
		padBlock(buf)
	}
	return nil
}

func writeTable(buf *bytes.Buffer, table Table) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("table %s has no columns", table.Name)
	}
	rows := -1
	rowLen := 0
	for _, col := range table.Columns {
		var n int
		switch {
		case col.Strings != nil && col.Bools == nil:
			if col.Width <= 0 {
				return fmt.Errorf("column %s needs a character width", col.Name)
			}
			n = len(col.Strings)
			rowLen += col.Width
		case col.Bools != nil && col.Strings == nil:
			n = len(col.Bools)
			rowLen++
		default:
			return fmt.Errorf("column %s needs exactly one value type", col.Name)
		}
		if rows == -1 {
			rows = n
		} else if rows != n {
			return fmt.Errorf("column %s has %d rows, want %d", col.Name, n, rows)
		}
	}

	cards := []Card{
		{Key: "XTENSION", Value: "BINTABLE"},
		{Key: "BITPIX", Value: 8},
		{Key: "NAXIS", Value: 2},
		{Key: "NAXIS1", Value: rowLen},
		{Key: "NAXIS2", Value: rows},
		{Key: "PCOUNT", Value: 0},
		{Key: "GCOUNT", Value: 1},
		{Key: "TFIELDS", Value: len(table.Columns)},
	}
	for i, col := range table.Columns {
		form := "L"
		if col.Strings != nil {
			form = fmt.Sprintf("%dA", col.Width)
		}
		cards = append(cards,
			Card{Key: fmt.Sprintf("TTYPE%d", i+1), Value: col.Name},
			Card{Key: fmt.Sprintf("TFORM%d", i+1), Value: form},
		)
	}
	if table.Name != "" {
		cards = append(cards, Card{Key: "EXTNAME", Value: table.Name})
	}
	cards = append(cards, table.Cards...)
	writeHeader(buf, cards)

	for row := 0; row < rows; row++ {
		for _, col := range table.Columns {
			if col.Strings != nil {
				buf.WriteString(padRight(truncate(col.Strings[row], col.Width), col.Width))
				continue
			}
			if col.Bools[row] {
				buf.WriteByte('T')
			} else {
				buf.WriteByte('F')
			}
		}
	}
	padBlock(buf)
	return nil
}

func writeHeader(buf *bytes.Buffer, cards []Card) {
	for _, card := range cards {
		buf.Write(formatCard(card.Key, card.Value, card.Comment))
	}
	end := make([]byte, cardSize)
	for i := range end {
		end[i] = ' '
	}
	copy(end, "END")
	buf.Write(end)
	padBlockWith(buf, ' ')
}

func padBlock(buf *bytes.Buffer) {
	padBlockWith(buf, 0)
}

func padBlockWith(buf *bytes.Buffer, fill byte) {
	for buf.Len()%blockSize != 0 {
		buf.WriteByte(fill)
	}
}
