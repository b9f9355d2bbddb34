package filename

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/desertthunder/ytmirror/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Extension is the audio container every download is transcoded to.
const Extension = ".mp3"

// FallbackFolder is returned by [SanitizeFolderName] when nothing representable remains.
const FallbackFolder = "unnamed"

var (
	illegalChars   = regexp.MustCompile(`[":'*/?\\<>|]`)
	nonKeyChars    = regexp.MustCompile(`[^a-z0-9]`)
	nonFolderChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	hyphenRuns     = regexp.MustCompile(`-+`)
)

// SanitizeFilename removes characters that are unsafe in filenames and trims surrounding whitespace.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(illegalChars.ReplaceAllString(name, ""))
}

// Stem returns the canonical name for t without the extension.
//
// The raw "<artists> - <title>" string is NFC-normalized first so that composed and decomposed
// input produce identical names.
func Stem(t models.Track) string {
	raw := t.ArtistString() + " - " + t.Title
	return SanitizeFilename(norm.NFC.String(raw))
}

// CanonicalFilename returns the file name a download of t is stored under.
func CanonicalFilename(t models.Track) string {
	return Stem(t) + Extension
}

// Normalize reduces a file stem to its matching key: accents folded, lowercased, and only
// [a-z0-9] kept. Applying it twice yields the same value as applying it once.
func Normalize(stem string) string {
	return nonKeyChars.ReplaceAllString(strings.ToLower(fold(stem)), "")
}

// Key returns the normalized key for t.
func Key(t models.Track) string {
	return Normalize(Stem(t))
}

// SanitizeFolderName converts a playlist name into a filesystem-safe folder name.
func SanitizeFolderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(fold(name)))
	name = nonFolderChars.ReplaceAllString(name, "")
	name = whitespaceRuns.ReplaceAllString(name, "-")
	name = hyphenRuns.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return FallbackFolder
	}
	return name
}

// Snapshot maps the normalized key of every audio file in dir to its file name.
//
// A folder that does not exist yields an empty snapshot.
func Snapshot(dir string) (map[string]string, error) {
	result := make(map[string]string)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, Extension) {
			continue
		}
		result[Normalize(strings.TrimSuffix(name, ext))] = name
	}
	return result, nil
}

// fold decomposes s (NFKD) and drops combining marks, leaving ASCII-foldable text.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
