package models

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// CodeUnit is one immutable input file for a review. Identity is
// (Path, Fingerprint); the fingerprint is a pure function of Content, so
// cached results keyed on it survive across reviews of identical code.
type CodeUnit struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Language    string `json:"language"`
	Size        int    `json:"size"`
	Fingerprint string `json:"content_fingerprint"`
}

// NewCodeUnit builds a CodeUnit, computing size and content fingerprint.
// An empty language is detected from the path extension.
func NewCodeUnit(path, content, language string) CodeUnit {
	if language == "" {
		language = LanguageForPath(path)
	}
	return CodeUnit{
		Path:        path,
		Content:     content,
		Language:    language,
		Size:        len(content),
		Fingerprint: FingerprintContent(content),
	}
}

// FingerprintContent returns the hex sha256 of content.
func FingerprintContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SupportedLanguages lists the languages producers know how to review.
var SupportedLanguages = []string{
	"python", "javascript", "typescript", "go", "java", "rust", "cpp",
}

// LanguageSupported reports whether producers can review the given language.
func LanguageSupported(language string) bool {
	for _, l := range SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

var extLanguages = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".go":  "go",
	".java": "java",
	".rs":  "rust",
	".cpp": "cpp",
	".cc":  "cpp",
	".cxx": "cpp",
	".h":   "cpp",
	".hpp": "cpp",
}

// LanguageForPath guesses the language from a file extension.
// Returns "unknown" when the extension is not recognized.
func LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	return "unknown"
}
