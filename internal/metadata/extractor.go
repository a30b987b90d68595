package metadata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rubato/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// losslessFormats are the extensions whose codecs carry the full PCM signal.
var losslessFormats = map[string]bool{
	".flac": true,
	".wav":  true,
	".aiff": true,
	".aif":  true,
}

// Extractor derives track metadata from audio files: standard tags via the
// tag library plus technical stream properties from per-format probing.
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// ReadMetadata extracts tags and technical info from an audio file. Tag-read
// failures fall back to filename-derived fields; probe failures fall back to
// CD-quality defaults so a track row can always be produced.
func (e *Extractor) ReadMetadata(filePath string) (models.TrackMetadata, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to open audio file")
		return models.TrackMetadata{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to get file stats")
		return models.TrackMetadata{}, err
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	meta := models.TrackMetadata{
		FileSize:      stat.Size(),
		Format:        strings.ToUpper(strings.TrimPrefix(ext, ".")),
		SampleRate:    44100,
		BitsPerSample: 16,
		Channels:      2,
	}

	tech, err := e.probeTechnical(filePath, ext)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to probe stream properties, using defaults")
	} else {
		meta.DurationMS = tech.durationMS
		meta.SampleRate = tech.sampleRate
		meta.BitsPerSample = tech.bitsPerSample
		meta.Channels = tech.channels
	}
	meta.Codec = codecName(ext, meta.BitsPerSample)
	meta.IsLossless = losslessFormats[ext]
	meta.IsHighResolution = meta.BitsPerSample > 16 || meta.SampleRate > 48000

	// Extract standard tags using the tag library
	metadata, err := tag.ReadFrom(file)
	if err != nil {
		// If tag extraction fails, use filename
		filename := filepath.Base(filePath)
		name := strings.TrimSuffix(filename, filepath.Ext(filename))

		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to extract tags, using filename")

		meta.Title = name
		meta.Artist = "Unknown Artist"
		meta.Album = "Unknown Album"
		return meta, nil
	}

	meta.Title = metadata.Title()
	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	meta.Artist = metadata.Artist()
	if meta.Artist == "" {
		meta.Artist = "Unknown Artist"
	}
	meta.Album = metadata.Album()
	if meta.Album == "" {
		meta.Album = "Unknown Album"
	}
	meta.AlbumArtist = metadata.AlbumArtist()
	meta.Genre = metadata.Genre()
	meta.Year = metadata.Year()
	meta.TrackNumber, _ = metadata.Track()
	meta.DiscNumber, _ = metadata.Disc()

	processingTime := time.Since(startTime)
	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          meta.Title,
		"artist":         meta.Artist,
		"album":          meta.Album,
		"durationMs":     meta.DurationMS,
		"processingTime": processingTime,
	}).Debug("Successfully extracted metadata")

	return meta, nil
}

// technicalInfo holds the stream properties derived from the audio data
// itself rather than from tags.
type technicalInfo struct {
	durationMS    int64
	sampleRate    int64
	bitsPerSample int64
	channels      int64
}

// probeTechnical reads stream properties for the formats we can parse
// cheaply; other formats keep the CD-quality defaults.
func (e *Extractor) probeTechnical(filePath, ext string) (technicalInfo, error) {
	switch ext {
	case ".flac":
		return e.probeFLAC(filePath)
	case ".wav":
		return e.probeWAV(filePath)
	case ".mp3":
		return e.probeMP3(filePath)
	default:
		return technicalInfo{}, fmt.Errorf("no stream probe for format: %s", ext)
	}
}

// FLAC stream properties via the STREAMINFO metadata block.
func (e *Extractor) probeFLAC(path string) (technicalInfo, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return technicalInfo{}, err
	}
	si := stream.Info
	if si.SampleRate == 0 {
		return technicalInfo{}, fmt.Errorf("flac stream missing sample info")
	}
	info := technicalInfo{
		sampleRate:    int64(si.SampleRate),
		bitsPerSample: int64(si.BitsPerSample),
		channels:      int64(si.NChannels),
	}
	if si.NSamples > 0 {
		info.durationMS = int64(float64(si.NSamples) / float64(si.SampleRate) * 1000)
	}
	return info, nil
}

// WAV stream properties from the header; duration approximated from file
// size since a full sample count would require decoding all samples.
func (e *Extractor) probeWAV(path string) (technicalInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return technicalInfo{}, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return technicalInfo{}, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return technicalInfo{}, fmt.Errorf("invalid wav header")
	}
	st, err := f.Stat()
	if err != nil {
		return technicalInfo{}, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return technicalInfo{}, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	return technicalInfo{
		durationMS:    sampleFrames * 1000 / int64(dec.SampleRate),
		sampleRate:    int64(dec.SampleRate),
		bitsPerSample: int64(dec.BitDepth),
		channels:      int64(dec.NumChans),
	}, nil
}

// MP3 duration using frame decoding. Falls back to an average-bitrate
// estimate only if no frame decodes.
func (e *Extractor) probeMP3(path string) (technicalInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return technicalInfo{}, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	info := technicalInfo{sampleRate: 44100, bitsPerSample: 16, channels: 2}
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 { // could not decode any frame
				secs, err := e.estimateFromFileSize(path, 192000) // assume 192 kbps
				if err != nil {
					return technicalInfo{}, err
				}
				info.durationMS = secs * 1000
				return info, nil
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	info.durationMS = total.Milliseconds()
	return info, nil
}

// estimateFromFileSize provides last-resort duration estimation in seconds.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return (st.Size() * 8) / int64(bitrate), nil
}

// codecName maps an extension to a codec label; PCM formats carry their bit
// depth.
func codecName(ext string, bits int64) string {
	switch ext {
	case ".flac":
		return "FLAC"
	case ".mp3":
		return "MP3"
	case ".wav", ".aiff", ".aif":
		return fmt.Sprintf("PCM S%d", bits)
	case ".aac":
		return "AAC"
	case ".opus":
		return "Opus"
	case ".ogg":
		return "Vorbis"
	case ".mpc":
		return "Musepack"
	default:
		return strings.ToUpper(strings.TrimPrefix(ext, "."))
	}
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
