// Package decode turns encoded audio bytes into in-memory beep buffers.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format identifies a container/codec the decoder understands.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatVorbis  Format = "ogg"
)

// DecodeError reports that one named source could not be decoded.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// Detect picks a format from the file extension, falling back to the magic
// bytes at the start of data.
func Detect(name string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatVorbis
	}
	return Sniff(data)
}

// Sniff identifies a format by its magic bytes.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatVorbis
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return FormatMP3
	}
	return FormatUnknown
}

// Decode decodes a whole encoded file into memory. name is used for format
// detection and error reporting only.
func Decode(name string, data []byte) (*beep.Buffer, error) {
	format := Detect(name, data)
	streamer, f, err := open(format, data)
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	defer streamer.Close()

	buf := beep.NewBuffer(f)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &DecodeError{Name: name, Err: errors.New("no audio frames")}
	}
	return buf, nil
}

// DecodeFile reads and decodes the file at path.
func DecodeFile(path string) (*beep.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Name: filepath.Base(path), Err: err}
	}
	return Decode(filepath.Base(path), data)
}

func open(format Format, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatWAV:
		return wav.Decode(r)
	case FormatMP3:
		return mp3.Decode(nopCloser{r})
	case FormatFLAC:
		return flac.Decode(r)
	case FormatVorbis:
		return vorbis.Decode(nopCloser{r})
	}
	return nil, beep.Format{}, ErrUnsupportedFormat
}

// StemName derives a display name from a file path: the base name without
// its extension.
func StemName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Supported reports whether path has an extension Decode recognises.
func Supported(path string) bool {
	return Detect(path, nil) != FormatUnknown
}
