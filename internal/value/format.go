package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// storageSpecial lists characters that force a string to be double-quoted
// when written into a front-matter block.
const storageSpecial = `:#[]{},%&*()='"|><`

// Ellipsis marks a truncated display string.
const Ellipsis = "..."

// ForStorage renders v as a literal safe to place after "key: " in a
// front-matter block.
func ForStorage(v Value) string {
	switch v.kind {
	case KindUndefined, KindNull:
		return "null"
	case KindString:
		return storageString(v.s)
	case KindNumber:
		return storageNumber(v.n)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindObject:
		b, err := v.MarshalJSON()
		if err != nil {
			return storageString(fmt.Sprint(v.Native()))
		}
		return string(b)
	}
	return "null"
}

func storageString(s string) string {
	if strings.ContainsAny(s, storageSpecial) || !readsAsPlainString(s) {
		return quote(s)
	}
	return s
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func storageNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return formatNumber(f)
}

// formatNumber prints integers without a fraction and switches to exponent
// form only for very large or very small magnitudes.
func formatNumber(f float64) string {
	abs := math.Abs(f)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Display renders v for humans: null and undefined by name, containers as
// compact JSON, scalars in their natural form.
func Display(v Value) string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return v.s
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return strconv.FormatFloat(v.n, 'f', -1, 64)
		}
		return formatNumber(v.n)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindObject:
		b, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprint(v.Native())
		}
		return string(b)
	}
	return ""
}

// DisplayString is Display followed by Truncate.
func DisplayString(v Value, maxLength int) string {
	return Truncate(Display(v), maxLength)
}

// Truncate shortens s to maxLength runes and appends Ellipsis when anything
// was cut. A maxLength <= 0 disables truncation.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(s) <= maxLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLength]) + Ellipsis
}
