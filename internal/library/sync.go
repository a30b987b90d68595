package library

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rubato/internal/database"
	"rubato/internal/dr"
	"rubato/internal/metadata"
	"rubato/internal/watcher"
	"rubato/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// artworkNames are the conventional cover image base names, in preference
// order.
var artworkNames = []string{"cover", "folder", "front"}

// artworkExtensions are the image formats considered for album artwork.
var artworkExtensions = []string{".jpg", ".jpeg", ".png"}

// Synchronizer applies debounced file changes to the catalog in transactional
// batches. Files are grouped by album directory so each album's rows are
// derived from all of its changed tracks at once.
type Synchronizer struct {
	db        *database.Database
	extractor *metadata.Extractor
	dr        *dr.Coordinator
	maxBatch  int
	logger    *logrus.Logger
}

// NewSynchronizer creates a synchronizer. drCoordinator may be nil when DR
// report parsing is disabled.
func NewSynchronizer(db *database.Database, extractor *metadata.Extractor, drCoordinator *dr.Coordinator, maxBatchSize int) *Synchronizer {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if maxBatchSize < 1 {
		maxBatchSize = 1
	}

	return &Synchronizer{
		db:        db,
		extractor: extractor,
		dr:        drCoordinator,
		maxBatch:  maxBatchSize,
		logger:    logger,
	}
}

// HandleChanged upserts the given audio files into the catalog. Paths are
// processed in slices of the configured batch size, each slice in its own
// transaction. A file that fails metadata extraction is logged and skipped
// without failing its batch.
func (s *Synchronizer) HandleChanged(paths []string) error {
	for start := 0; start < len(paths); start += s.maxBatch {
		end := start + s.maxBatch
		if end > len(paths) {
			end = len(paths)
		}
		if err := s.syncBatch(paths[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// syncBatch applies one slice of changed files in a single transaction, then
// resolves DR values for the touched album directories.
func (s *Synchronizer) syncBatch(paths []string) error {
	batchID := uuid.New().String()
	startTime := time.Now()

	byAlbumDir := make(map[string][]string)
	var dirOrder []string
	for _, path := range paths {
		dir := filepath.Dir(path)
		if _, seen := byAlbumDir[dir]; !seen {
			dirOrder = append(dirOrder, dir)
		}
		byAlbumDir[dir] = append(byAlbumDir[dir], path)
	}

	synced := 0
	err := s.db.WithBatch(func(tx *sql.Tx) error {
		for _, dir := range dirOrder {
			// A directory that fails to sync is skipped, not fatal to the
			// batch; its files are retried on the next scan.
			n, err := s.syncAlbumDir(tx, dir, byAlbumDir[dir])
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"batchId":  batchID,
					"albumDir": dir,
					"error":    err.Error(),
				}).Warn("Skipping album directory that failed to sync")
				continue
			}
			synced += n
		}
		return nil
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"batchId": batchID,
			"error":   err.Error(),
		}).Error("Sync batch failed, rolled back")
		return err
	}

	if s.dr != nil {
		for _, dir := range dirOrder {
			if _, err := s.dr.Resolve(dir); err != nil {
				s.logger.WithFields(logrus.Fields{
					"batchId":  batchID,
					"albumDir": dir,
					"error":    err.Error(),
				}).Warn("Failed to resolve DR value")
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"batchId":        batchID,
		"files":          len(paths),
		"tracksSynced":   synced,
		"albumDirs":      len(dirOrder),
		"processingTime": time.Since(startTime),
	}).Info("Sync batch committed")
	return nil
}

// syncAlbumDir upserts the changed tracks of one album directory and derives
// the owning artist and album rows from their combined metadata.
func (s *Synchronizer) syncAlbumDir(tx *sql.Tx, dir string, paths []string) (int, error) {
	type extracted struct {
		path string
		meta models.TrackMetadata
	}

	var tracks []extracted
	for _, path := range paths {
		meta, err := s.extractor.ReadMetadata(path)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"filePath": path,
				"error":    err.Error(),
			}).Warn("Skipping file that failed metadata extraction")
			continue
		}
		tracks = append(tracks, extracted{path: path, meta: meta})
	}
	if len(tracks) == 0 {
		return 0, nil
	}

	metas := make([]models.TrackMetadata, len(tracks))
	for i, t := range tracks {
		metas[i] = t.meta
	}
	artistName, compilation := albumArtist(metas)
	info := albumInfo(dir, metas, compilation)

	artistID, err := s.db.GetOrCreateArtist(tx, artistName)
	if err != nil {
		return 0, err
	}
	albumID, err := s.db.GetOrCreateAlbum(tx, artistID, info)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, t := range tracks {
		if err := s.db.UpsertTrack(tx, albumID, t.path, t.meta); err != nil {
			s.logger.WithFields(logrus.Fields{
				"filePath": t.path,
				"error":    err.Error(),
			}).Warn("Skipping track that failed to persist")
			continue
		}
		synced++
	}
	return synced, nil
}

// HandleRemoved deletes tracks for paths that vanished. A path with an audio
// extension is removed as a single track; any other path is assumed to have
// been a directory and everything beneath it is removed.
func (s *Synchronizer) HandleRemoved(paths []string) error {
	var files []string
	var dirs []string
	for _, path := range paths {
		if s.extractor.IsAudioFile(path) {
			files = append(files, path)
		} else {
			dirs = append(dirs, path)
		}
	}

	if len(files) > 0 {
		if err := s.db.BatchRemoveTracks(files); err != nil {
			return err
		}
		if s.dr != nil {
			for _, f := range files {
				s.dr.Invalidate(filepath.Dir(f))
			}
		}
	}
	for _, dir := range dirs {
		if err := s.db.RemoveTracksInDirectory(dir); err != nil {
			return err
		}
		if s.dr != nil {
			s.dr.Invalidate(dir)
		}
		s.logger.WithField("directory", dir).Info("Removed directory from catalog")
	}
	return nil
}

// HandleRenamed applies file moves as a removal of the old path followed by a
// sync of the new path.
func (s *Synchronizer) HandleRenamed(pairs []watcher.RenamePair) error {
	froms := make([]string, 0, len(pairs))
	tos := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		froms = append(froms, pair.From)
		tos = append(tos, pair.To)
	}
	if err := s.HandleRemoved(froms); err != nil {
		return err
	}
	return s.HandleChanged(tos)
}

// PruneMissingFiles removes catalog tracks whose backing files no longer
// exist on disk. Used after a full scan to reconcile offline deletions.
func (s *Synchronizer) PruneMissingFiles() (int, error) {
	paths, err := s.db.GetAllTrackPaths()
	if err != nil {
		return 0, err
	}

	var missing []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, path)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	for start := 0; start < len(missing); start += s.maxBatch {
		end := start + s.maxBatch
		if end > len(missing) {
			end = len(missing)
		}
		if err := s.db.BatchRemoveTracks(missing[start:end]); err != nil {
			return 0, err
		}
	}

	s.logger.WithField("count", len(missing)).Info("Pruned tracks with missing files")
	return len(missing), nil
}

// albumArtist derives the owning artist for an album from its tracks. An
// album-artist tag consensus wins; otherwise the majority track artist. When
// tracks disagree on artists and carry no album-artist tag, the album is a
// compilation under "Various Artists".
func albumArtist(metas []models.TrackMetadata) (string, bool) {
	var albumArtists, artists []string
	distinctArtists := make(map[string]bool)
	for _, m := range metas {
		if m.AlbumArtist != "" {
			albumArtists = append(albumArtists, m.AlbumArtist)
		}
		if m.Artist != "" {
			artists = append(artists, m.Artist)
			distinctArtists[m.Artist] = true
		}
	}

	if name := majority(albumArtists); name != "" {
		return name, strings.EqualFold(name, "Various Artists")
	}
	if len(distinctArtists) > 1 {
		return "Various Artists", true
	}
	if name := majority(artists); name != "" {
		return name, false
	}
	return "Unknown Artist", false
}

// albumInfo derives the album row fields from the combined track metadata of
// one directory.
func albumInfo(dir string, metas []models.TrackMetadata, compilation bool) database.AlbumInfo {
	var titles, genres, formats []string
	var years []int
	var maxBits, maxRate int64
	for _, m := range metas {
		if m.Album != "" {
			titles = append(titles, m.Album)
		}
		if m.Genre != "" {
			genres = append(genres, m.Genre)
		}
		if m.Format != "" {
			formats = append(formats, m.Format)
		}
		if m.Year > 0 {
			years = append(years, m.Year)
		}
		if m.BitsPerSample > maxBits {
			maxBits = m.BitsPerSample
		}
		if m.SampleRate > maxRate {
			maxRate = m.SampleRate
		}
	}

	info := database.AlbumInfo{
		Title:       majority(titles),
		Compilation: compilation,
		Path:        dir,
	}
	if info.Title == "" {
		info.Title = "Unknown Album"
	}
	if genre := majority(genres); genre != "" {
		info.Genre = &genre
	}
	if format := majority(formats); format != "" {
		info.Format = &format
	}
	if year := majorityInt(years); year > 0 {
		y := int64(year)
		info.Year = &y
	}
	if maxBits > 0 {
		info.BitsPerSample = &maxBits
	}
	if maxRate > 0 {
		info.SampleRate = &maxRate
	}
	if artwork := findArtwork(dir); artwork != "" {
		info.ArtworkPath = &artwork
	}
	return info
}

// findArtwork looks for a conventional cover image in an album directory
func findArtwork(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	byLowerName := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			byLowerName[strings.ToLower(entry.Name())] = entry.Name()
		}
	}

	for _, base := range artworkNames {
		for _, ext := range artworkExtensions {
			if actual, ok := byLowerName[base+ext]; ok {
				return filepath.Join(dir, actual)
			}
		}
	}
	return ""
}

// majority returns the most frequent value, breaking ties toward the value
// seen first. Empty input yields the empty string.
func majority(values []string) string {
	counts := make(map[string]int)
	best := ""
	bestCount := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

func majorityInt(values []int) int {
	counts := make(map[int]int)
	best := 0
	bestCount := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}
