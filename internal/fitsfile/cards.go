package fitsfile

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	blockSize     = 2880
	cardSize      = 80
	cardsPerBlock = blockSize / cardSize
)

// Card is a single header keyword for the writers. Value may be a string,
// bool, int, or float64; a nil Value writes a commentary card.
type Card struct {
	Key     string
	Value   any
	Comment string
}

// formatCard renders one fixed-format 80-byte header card.
func formatCard(key string, value any, comment string) []byte {
	card := make([]byte, cardSize)
	for i := range card {
		card[i] = ' '
	}
	copy(card, key)
	if value == nil {
		copy(card[8:], truncate(comment, cardSize-8))
		return card
	}
	card[8] = '='

	var field string
	switch v := value.(type) {
	case string:
		field = "'" + padRight(truncate(v, 68), 8) + "'"
	case bool:
		if v {
			field = fmt.Sprintf("%20s", "T")
		} else {
			field = fmt.Sprintf("%20s", "F")
		}
	case int:
		field = fmt.Sprintf("%20d", v)
	case int64:
		field = fmt.Sprintf("%20d", v)
	case float64:
		field = fmt.Sprintf("%20s", formatFloat(v))
	default:
		field = fmt.Sprintf("%20v", v)
	}
	copy(card[10:], field)

	if comment != "" {
		pos := 10 + len(field)
		if pos+3 < cardSize {
			copy(card[pos:], truncate(" / "+comment, cardSize-pos))
		}
	}
	return card
}

// formatFloat keeps a decimal point or exponent in the text so the value
// reads back as floating-point rather than integer.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'G', -1, 64)
	if !strings.ContainsAny(s, ".E") {
		s += "."
	}
	return s
}

func padRight(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}

func truncate(s string, width int) string {
	if len(s) > width {
		return s[:width]
	}
	return s
}
