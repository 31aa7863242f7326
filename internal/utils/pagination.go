// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// Page is a bounded page request. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads raw page and page-size query values. Missing or
// unparsable values fall back to page 1 and defSize; the size is then
// clamped to [1, maxSize].
//
// Example:
//
//	p := utils.ParsePage("3", "500", 20, 100) // Page{Number: 3, Size: 100}
//	p = utils.ParsePage("", "x", 20, 100)     // Page{Number: 1, Size: 20}
func ParsePage(page, size string, defSize, maxSize int) Page {
	p := Page{Number: atoiDefault(page, 1), Size: atoiDefault(size, defSize)}
	return p.Clamp(defSize, maxSize)
}

// Clamp bounds an already-parsed page. A non-positive size becomes defSize
// when defSize is positive, and 1 otherwise.
func (p Page) Clamp(defSize, maxSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = max(defSize, 1)
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is ceil(total / size); zero for an empty result.
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
