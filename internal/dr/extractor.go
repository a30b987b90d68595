package dr

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoDRValueFound is returned when a sidecar file contains none of the
// official DR phrasings.
var ErrNoDRValueFound = errors.New("no official DR value found")

// officialPatterns match the phrasings that rip logs use for the verified
// album-wide dynamic range value. Per-track DR tables are deliberately not
// matched; only the official summary line counts.
var officialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Official DR value:\s*(?:DR)?(\d{1,2})`),
	regexp.MustCompile(`Official EP/Album DR:\s*(?:DR)?(\d{1,2})`),
	regexp.MustCompile(`Реальные значения DR:\s*(?:DR)?(\d{1,2})`),
}

// candidateExtensions are the sidecar formats worth scanning for DR reports.
var candidateExtensions = map[string]bool{
	".txt": true,
	".log": true,
	".md":  true,
	".csv": true,
}

// validDRValue matches a normalized DR value string
var validDRValue = regexp.MustCompile(`^DR\d{1,2}$`)

// Extractor parses dynamic range report files that rippers leave next to
// album audio files.
type Extractor struct{}

// NewExtractor creates a new DR report extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// FindCandidateFiles lists sidecar files in an album directory that could
// hold a DR report. A missing directory yields an empty list, not an error.
func (e *Extractor) FindCandidateFiles(albumDir string) ([]string, error) {
	entries, err := os.ReadDir(albumDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read album directory: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if candidateExtensions[ext] {
			candidates = append(candidates, filepath.Join(albumDir, entry.Name()))
		}
	}
	return candidates, nil
}

// ParseFile scans a sidecar file for official DR phrasings and returns the
// highest valid value found, normalized to "DR<n>" form. Returns
// ErrNoDRValueFound when no line matches.
func (e *Extractor) ParseFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open DR file: %w", err)
	}
	defer file.Close()

	best := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		for _, pattern := range officialPatterns {
			match := pattern.FindStringSubmatch(line)
			if match == nil {
				continue
			}
			n, err := strconv.Atoi(match[1])
			if err != nil || n < 1 || n > 20 {
				continue
			}
			if n > best {
				best = n
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read DR file: %w", err)
	}

	if best == 0 {
		return "", ErrNoDRValueFound
	}
	return fmt.Sprintf("DR%d", best), nil
}

// ValidateDRValue reports whether a string is a well-formed DR value in the
// plausible range 1 to 20.
func ValidateDRValue(value string) bool {
	if !validDRValue.MatchString(value) {
		return false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(value, "DR"))
	if err != nil {
		return false
	}
	return n >= 1 && n <= 20
}
