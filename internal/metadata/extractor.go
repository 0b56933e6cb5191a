package metadata

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nasheedpro/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Extractor reads song metadata from audio files for catalog ingestion.
// Embedded cover art is written once per distinct image into the covers
// directory and referenced by filename from the song row.
type Extractor struct {
	supportedFormats []string
	coversDir        string
	logger           *logrus.Logger

	coverMux    sync.Mutex
	coverByHash map[string]string // content hash -> stored filename
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, coversDir string) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Extractor{
		supportedFormats: supportedFormats,
		coversDir:        coversDir,
		logger:           logger,
		coverByHash:      make(map[string]string),
	}
}

// ExtractFromFile builds a catalog entry from an audio file.
func (e *Extractor) ExtractFromFile(filePath string) (models.Song, error) {
	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("filePath", filePath).Error("Failed to open audio file")
		return models.Song{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		e.logger.WithError(err).WithField("filePath", filePath).Error("Failed to get file stats")
		return models.Song{}, err
	}

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("filePath", filePath).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}

	song := models.Song{
		Title:    strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
		FilePath: filePath,
		Duration: duration,
		FileSize: stat.Size(),
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		// If metadata extraction fails, the filename-derived title stands.
		e.logger.WithError(err).WithField("filePath", filePath).Warn("Failed to extract metadata, using filename")
		return song, nil
	}

	if title := metadata.Title(); title != "" {
		song.Title = title
	}
	song.Artist = metadata.Artist()
	song.Cover = e.saveCover(metadata, filePath)

	e.logger.WithFields(logrus.Fields{
		"filePath": filePath,
		"title":    song.Title,
		"artist":   song.Artist,
		"duration": song.Duration,
		"hasCover": song.Cover != "",
	}).Debug("Successfully extracted metadata")

	return song, nil
}

// saveCover writes embedded cover art to the covers dir, deduplicating by
// content hash, and returns the stored filename ("" when absent).
func (e *Extractor) saveCover(metadata tag.Metadata, filePath string) string {
	picture := metadata.Picture()
	if picture == nil || len(picture.Data) == 0 {
		return ""
	}

	hash := fmt.Sprintf("%x", md5.Sum(picture.Data))

	e.coverMux.Lock()
	defer e.coverMux.Unlock()

	if name, ok := e.coverByHash[hash]; ok {
		return name
	}

	if err := os.MkdirAll(e.coversDir, 0755); err != nil {
		e.logger.WithError(err).Warn("Failed to create covers directory")
		return ""
	}

	ext := coverExtension(picture.MIMEType)
	name := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(e.coversDir, name), picture.Data, 0644); err != nil {
		e.logger.WithError(err).WithField("filePath", filePath).Warn("Failed to write cover art")
		return ""
	}

	e.coverByHash[hash] = name
	return name
}

func coverExtension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(filePath string) (int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fallback to average bitrate estimation only if frames fail entirely.
func (e *Extractor) durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var total int64 // microseconds
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 { // could not decode any frame
				return e.estimateFromFileSize(path, 192000) // assume 192 kbps
			}
			break // partial decode; use what we have
		}
		total += fr.Duration().Microseconds()
		frames++
	}
	return int(total / 1e6), nil
}

// FLAC duration via STREAMINFO metadata block
func (e *Extractor) durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration using go-audio/wav to read header
func (e *Extractor) durationWAV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	// Approximate using file size; full sample count would require decoding.
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	secs := float64(sampleFrames) / float64(dec.SampleRate)
	return int(secs + 0.5), nil
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (int, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	dur := (st.Size() * 8) / int64(bitrate)
	return int(dur), nil
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

// GetContentType returns the MIME type for an audio file
func (e *Extractor) GetContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
