// Package registry reads and writes the playlist registry: an ordered JSON object mapping
// local folder paths to catalog playlist URLs.
//
//	{
//	    "~/Music/Spotify/exports/road-trip": "https://open.spotify.com/playlist/37i9...?si=abc"
//	}
//
// Entry order is significant (it is the sync order) and is preserved across load and save.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/ytmirror/internal/filename"
	"github.com/desertthunder/ytmirror/internal/models"
	"github.com/desertthunder/ytmirror/internal/shared"
)

// DefaultBaseDir is the parent folder used for new entries.
const DefaultBaseDir = "~/Music/Spotify/exports"

// Registry is the ordered folder -> URL mapping. The zero value is an empty registry.
type Registry struct {
	entries []models.PlaylistRef
}

// New creates a registry holding refs in order. Later duplicates of a folder replace earlier ones.
func New(refs ...models.PlaylistRef) *Registry {
	r := &Registry{}
	for _, ref := range refs {
		r.set(ref.Folder, ref.URL)
	}
	return r
}

// Load reads the registry at path.
//
// Loading is permissive: a missing file yields an empty registry with no error, and an
// undecodable file yields an empty registry together with an error describing the problem
// so the caller can warn. Callers that require the file should check [Exists] first.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Registry{}, nil
		}
		return &Registry{}, fmt.Errorf("%w: %v", shared.ErrRegistryNotFound, err)
	}

	r, err := Decode(bytes.NewReader(data))
	if err != nil {
		return &Registry{}, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, path, err)
	}
	return r, nil
}

// Exists reports whether a registry file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Decode parses a registry object, keeping key order.
func Decode(rd io.Reader) (*Registry, error) {
	dec := json.NewDecoder(rd)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	r := &Registry{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		folder, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", tok)
		}

		var url string
		if err := dec.Decode(&url); err != nil {
			return nil, fmt.Errorf("value for %q: %w", folder, err)
		}
		r.set(folder, url)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return r, nil
}

// Save writes the registry to path as 4-space indented JSON with a trailing newline.
func (r *Registry) Save(path string) error {
	data, err := r.MarshalJSON()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// MarshalJSON encodes the registry in insertion order without HTML escaping.
func (r *Registry) MarshalJSON() ([]byte, error) {
	if len(r.entries) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, e := range r.entries {
		key, err := shared.MarshalJSON(e.Folder, "")
		if err != nil {
			return nil, err
		}
		val, err := shared.MarshalJSON(e.URL, "")
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(bytes.TrimSpace(key))
		buf.WriteString(": ")
		buf.Write(bytes.TrimSpace(val))
		if i < len(r.entries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the entries in order.
func (r *Registry) Entries() []models.PlaylistRef {
	out := make([]models.PlaylistRef, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the URL registered for folder.
func (r *Registry) Get(folder string) (string, bool) {
	if i := r.index(folder); i >= 0 {
		return r.entries[i].URL, true
	}
	return "", false
}

// FolderForURL returns the folder already registered for url, ignoring query strings.
func (r *Registry) FolderForURL(url string) (string, bool) {
	clean := StripQuery(url)
	for _, e := range r.entries {
		if StripQuery(e.URL) == clean {
			return e.Folder, true
		}
	}
	return "", false
}

// Add appends folder -> url.
//
// It fails with [shared.ErrDuplicateEntry] when the playlist is already registered (under any
// folder) or when folder is already taken by another playlist.
func (r *Registry) Add(folder, url string) error {
	if folder == "" || url == "" {
		return fmt.Errorf("%w: folder and url are required", shared.ErrMissingArgument)
	}
	if existing, ok := r.FolderForURL(url); ok {
		return fmt.Errorf("%w: playlist already registered as %s", shared.ErrDuplicateEntry, existing)
	}
	if _, ok := r.Get(folder); ok {
		return fmt.Errorf("%w: folder %s already exists in registry", shared.ErrDuplicateEntry, folder)
	}
	r.entries = append(r.entries, models.PlaylistRef{Folder: folder, URL: url})
	return nil
}

// Merge adds every discovered playlist whose URL is not yet registered, under
// baseDir/<sanitized name>. Existing entries and their custom folder names are untouched.
// A folder name collision is resolved by appending the first 8 characters of the playlist ID.
//
// It returns the newly added entries.
func (r *Registry) Merge(discovered []models.Playlist, baseDir string) []models.PlaylistRef {
	var added []models.PlaylistRef
	for _, pl := range discovered {
		if _, ok := r.FolderForURL(pl.URL); ok {
			continue
		}
		folder := FolderFor(baseDir, pl.Name)
		if _, taken := r.Get(folder); taken {
			folder = folder + "-" + shortID(pl.ID)
		}
		ref := models.PlaylistRef{Folder: folder, URL: pl.URL}
		r.entries = append(r.entries, ref)
		added = append(added, ref)
	}
	return added
}

// Filter returns the entries whose folder key contains substr, in order.
// An empty substr selects everything.
func (r *Registry) Filter(substr string) []models.PlaylistRef {
	if substr == "" {
		return r.Entries()
	}
	var out []models.PlaylistRef
	for _, e := range r.entries {
		if strings.Contains(e.Folder, substr) {
			out = append(out, e)
		}
	}
	return out
}

// FolderFor builds the registry key for a playlist called name under baseDir.
func FolderFor(baseDir, name string) string {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return strings.TrimSuffix(baseDir, "/") + "/" + filename.SanitizeFolderName(name)
}

// StripQuery drops everything from the first '?'.
func StripQuery(url string) string {
	before, _, _ := strings.Cut(url, "?")
	return before
}

func (r *Registry) set(folder, url string) {
	if i := r.index(folder); i >= 0 {
		r.entries[i].URL = url
		return
	}
	r.entries = append(r.entries, models.PlaylistRef{Folder: folder, URL: url})
}

func (r *Registry) index(folder string) int {
	for i, e := range r.entries {
		if e.Folder == folder {
			return i
		}
	}
	return -1
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
