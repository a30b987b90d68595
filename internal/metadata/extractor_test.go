package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

var testFormats = []string{".flac", ".mp3", ".aac", ".opus", ".ogg", ".wav", ".aiff", ".aif", ".mpc"}

func TestIsAudioFile(t *testing.T) {
	e := NewExtractor(testFormats)

	audio := []string{
		"/music/song.flac",
		"/music/song.FLAC",
		"/music/song.Mp3",
		"/music/song.wav",
		"/music/song.aif",
	}
	for _, path := range audio {
		if !e.IsAudioFile(path) {
			t.Errorf("Expected %s to be audio", path)
		}
	}

	notAudio := []string{
		"/music/cover.jpg",
		"/music/dr.txt",
		"/music/song.flac.tmp",
		"/music/song",
	}
	for _, path := range notAudio {
		if e.IsAudioFile(path) {
			t.Errorf("Expected %s to not be audio", path)
		}
	}
}

func TestReadMetadataFallbacks(t *testing.T) {
	e := NewExtractor(testFormats)
	dir := t.TempDir()

	// A file with no parseable tags falls back to filename and defaults
	path := filepath.Join(dir, "01 Some Song.mp3")
	if err := os.WriteFile(path, []byte("not really audio data"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	meta, err := e.ReadMetadata(path)
	if err != nil {
		t.Fatalf("Expected fallback metadata, got error: %v", err)
	}

	if meta.Title != "01 Some Song" {
		t.Errorf("Expected filename-derived title, got %q", meta.Title)
	}
	if meta.Artist != "Unknown Artist" {
		t.Errorf("Expected Unknown Artist, got %q", meta.Artist)
	}
	if meta.Album != "Unknown Album" {
		t.Errorf("Expected Unknown Album, got %q", meta.Album)
	}
	if meta.Format != "MP3" || meta.Codec != "MP3" {
		t.Errorf("Expected MP3 format and codec, got %s / %s", meta.Format, meta.Codec)
	}
	if meta.SampleRate != 44100 || meta.BitsPerSample != 16 || meta.Channels != 2 {
		t.Errorf("Expected CD-quality defaults, got %d/%d/%d",
			meta.SampleRate, meta.BitsPerSample, meta.Channels)
	}
	if meta.IsLossless {
		t.Error("Expected mp3 to not be lossless")
	}
	if meta.IsHighResolution {
		t.Error("Expected defaults to not be high resolution")
	}
	if meta.FileSize == 0 {
		t.Error("Expected file size to be recorded")
	}
}

func TestReadMetadataMissingFile(t *testing.T) {
	e := NewExtractor(testFormats)

	if _, err := e.ReadMetadata(filepath.Join(t.TempDir(), "gone.flac")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCodecNames(t *testing.T) {
	cases := map[string]string{
		".flac": "FLAC",
		".mp3":  "MP3",
		".aac":  "AAC",
		".opus": "Opus",
		".ogg":  "Vorbis",
		".mpc":  "Musepack",
	}
	for ext, want := range cases {
		if got := codecName(ext, 16); got != want {
			t.Errorf("codecName(%s): expected %s, got %s", ext, want, got)
		}
	}

	if got := codecName(".wav", 24); got != "PCM S24" {
		t.Errorf("Expected PCM S24 for 24-bit wav, got %s", got)
	}
	if got := codecName(".aiff", 16); got != "PCM S16" {
		t.Errorf("Expected PCM S16 for aiff, got %s", got)
	}
}

func TestLosslessClassification(t *testing.T) {
	for ext, want := range map[string]bool{
		".flac": true,
		".wav":  true,
		".aiff": true,
		".aif":  true,
		".mp3":  false,
		".aac":  false,
		".opus": false,
		".ogg":  false,
		".mpc":  false,
	} {
		if losslessFormats[ext] != want {
			t.Errorf("Expected lossless=%v for %s", want, ext)
		}
	}
}
