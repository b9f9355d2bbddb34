// Package filename derives on-disk names from catalog metadata and matches them against
// files that already exist in a playlist folder.
//
// # Canonical names
//
// [CanonicalFilename] builds "Artist1, Artist2 - Title.mp3" with characters that are illegal on
// common filesystems removed. The same artists and title always produce the same name.
//
// # Fuzzy matching
//
// [Normalize] reduces a name to lowercase ASCII letters and digits so that punctuation, spacing
// and accent differences between the catalog and the downloader collapse onto one key. Many
// names may share a key; a false "already exists" is preferred over a duplicate download.
// [Snapshot] indexes a folder by key.
//
// # Folder names
//
// [SanitizeFolderName] turns a playlist title into a lowercase, hyphenated folder name and never
// returns an empty string.
package filename
