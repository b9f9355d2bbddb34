package services

import (
	"fmt"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/ytmirror/internal/models"
)

// ID3Tagger implements [Tagger] for MP3 files using ID3v2.4 frames.
type ID3Tagger struct{}

// NewID3Tagger creates a tagger.
func NewID3Tagger() *ID3Tagger {
	return &ID3Tagger{}
}

// Tag replaces the title, artist and album frames of the file at path with the catalog's
// metadata and records the catalog URL in a comment frame. Other frames written by the
// downloader are kept.
func (t *ID3Tagger) Tag(path string, track models.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	tag.SetTitle(track.Title)
	tag.SetArtist(track.ArtistString())
	if track.Album != "" {
		tag.SetAlbum(track.Album)
	}

	if track.URL != "" {
		tag.DeleteFrames(tag.CommonID("Comments"))
		tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding:    id3v2.EncodingUTF8,
			Language:    "eng",
			Description: "source",
			Text:        track.URL,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	return nil
}
