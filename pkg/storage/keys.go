package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// extRegex matches characters that are not safe in a key extension.
var extRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)

// BuildKey derives the storage key for a file record.
// Format: users/{ownerID}/{fileID}.{ext} where ext comes from the last
// dot segment of filename; a filename without an extension yields a key
// without a suffix. The key is unique by construction because fileID is
// freshly generated for every record and never reused.
func BuildKey(fileID, ownerID, filename string) string {
	ext := extension(filename)
	if ext == "" {
		return fmt.Sprintf("users/%s/%s", ownerID, fileID)
	}
	return fmt.Sprintf("users/%s/%s.%s", ownerID, fileID, ext)
}

// extension extracts and sanitizes the filename extension.
// Dotfiles and trailing dots yield no extension.
func extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx <= 0 || idx == len(filename)-1 {
		return ""
	}
	return extRegex.ReplaceAllString(filename[idx+1:], "")
}
