package library

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
)

// Supported file extensions.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
	ExtM4A  = ".m4a"
	ExtOGG  = ".ogg"
	ExtOPUS = ".opus"
)

// Tags is the subset of tag metadata the catalog keeps.
type Tags struct {
	Title  string
	Artist string
	Album  string
}

// IsMusicFile reports whether path has a supported extension.
func IsMusicFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMP3, ExtFLAC, ExtM4A, ExtOGG, ExtOPUS:
		return true
	}
	return false
}

// ReadTags reads tag metadata from a music file.
func ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tags of %s", path)
	}

	artist := m.Artist()
	if artist == "" {
		artist = m.AlbumArtist()
	}
	return &Tags{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(artist),
		Album:  strings.TrimSpace(m.Album()),
	}, nil
}

// ProbeDuration decodes the stream header of an mp3 or flac file to compute
// its length. Other formats report an error.
func ProbeDuration(path string) (time.Duration, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtMP3 && ext != ExtFLAC {
		return 0, errors.Newf("unsupported format: %s", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ExtMP3:
		streamer, format, err = mp3.Decode(f)
	case ExtFLAC:
		if err := skipID3v2(f); err != nil {
			return 0, err
		}
		streamer, format, err = flac.Decode(f)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to decode %s", path)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}

// skipID3v2 positions f after a leading ID3v2 tag, which some taggers put in
// front of flac streams.
func skipID3v2(f io.ReadSeeker) error {
	header := make([]byte, 10)
	if _, err := io.ReadFull(f, header); err != nil {
		return err
	}
	if string(header[:3]) != "ID3" {
		_, err := f.Seek(0, io.SeekStart)
		return err
	}

	// size is a 28-bit syncsafe integer
	raw := binary.BigEndian.Uint32(header[6:10])
	size := int64(raw&0x7f) | int64(raw>>8&0x7f)<<7 | int64(raw>>16&0x7f)<<14 | int64(raw>>24&0x7f)<<21
	_, err := f.Seek(10+size, io.SeekStart)
	return err
}
