// Package naming derives filesystem-safe, length-bounded names from
// video metadata. The same derivation keys the completion ledger, so
// dedup and output filenames can never diverge.
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// Policy bounds the generated name parts. Lengths are in runes so CJK
// titles truncate by character, not by byte.
type Policy struct {
	MaxTitleLength    int
	MaxFilenameLength int
	UpnameMaxLength   int
}

var (
	// Illegal filesystem characters, CJK brackets and whitespace.
	titleStripRe = regexp.MustCompile(`[\\/:*?"<>|【】()\[\]《》\s]+`)
	partStripRe  = regexp.MustCompile(`[\\/:*?"<>|]`)
	// Uploader names keep only alphanumerics and common CJK.
	upKeepRe     = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
	underscoreRe = regexp.MustCompile(`_{2,}`)
	spaceRe      = regexp.MustCompile(` {2,}`)
)

const maxPartRunes = 20

// FileBase builds the output name (without extension) for one video
// page. The result is deterministic for a given input.
func (p Policy) FileBase(title, part string, page, pageCount int, uploader string) string {
	base := sanitizeTitle(title)
	base = truncateRunes(base, p.MaxTitleLength)

	var pageSuffix string
	if pageCount > 1 {
		cleanPart := strings.TrimSpace(partStripRe.ReplaceAllString(part, ""))
		if cleanPart == "" || strings.Contains(strings.ToLower(title), strings.ToLower(cleanPart)) {
			pageSuffix = fmt.Sprintf("_P%d", page)
		} else {
			pageSuffix = "_" + truncateRunes(cleanPart, maxPartRunes)
		}
	}

	var upSuffix string
	if uploader != "" && uploader != "unknown" {
		cleaned := upKeepRe.ReplaceAllString(uploader, "")
		if cleaned != "" {
			upSuffix = "-" + truncateRunes(cleaned, p.UpnameMaxLength)
		}
	}

	name := base + pageSuffix + upSuffix
	name = underscoreRe.ReplaceAllString(name, "_")
	return truncateRunes(name, p.MaxFilenameLength)
}

// SanitizeFolder makes a folder title safe to use as a directory name.
// Returns fallback when nothing printable survives.
func SanitizeFolder(title, fallback string) string {
	cleaned := strings.TrimSpace(partStripRe.ReplaceAllString(title, ""))
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func sanitizeTitle(title string) string {
	cleaned := titleStripRe.ReplaceAllString(title, " ")
	// Strip astral-plane runes (emoji and the like).
	cleaned = strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return ' '
		}
		return r
	}, cleaned)
	cleaned = spaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
