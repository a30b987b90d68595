package database

import (
	"database/sql"
	"fmt"

	"rubato/pkg/models"
)

// AlbumInfo carries the album-level fields derived from a batch of track
// metadata, used when resolving or creating the owning album row.
type AlbumInfo struct {
	Title         string
	Year          *int64
	Genre         *string
	Compilation   bool
	Path          string
	ArtworkPath   *string
	Format        *string
	BitsPerSample *int64
	SampleRate    *int64
}

// GetAlbums returns albums ordered by title then year. A non-empty filter
// restricts results to titles containing the substring (case-sensitive;
// callers lower-case as needed).
func (db *Database) GetAlbums(filter string) ([]models.Album, error) {
	query := `
		SELECT id, artist_id, title, year, genre, compilation, path, dr_value,
		       artwork_path, format, bits_per_sample, sample_rate, created_at, updated_at
		FROM albums`
	args := []interface{}{}
	if filter != "" {
		query += " WHERE title LIKE ?"
		args = append(args, "%"+filter+"%")
	}
	query += " ORDER BY title, year"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAlbumRows(rows)
}

// GetArtists returns artists with derived album counts, ordered by name. A
// non-empty filter restricts results to names containing the substring.
func (db *Database) GetArtists(filter string) ([]models.Artist, error) {
	query := `
		SELECT ar.id, ar.name, COALESCE(COUNT(al.id), 0) AS album_count, ar.created_at, ar.updated_at
		FROM artists ar
		LEFT JOIN albums al ON al.artist_id = ar.id`
	args := []interface{}{}
	if filter != "" {
		query += " WHERE ar.name LIKE ?"
		args = append(args, "%"+filter+"%")
	}
	query += " GROUP BY ar.id, ar.name, ar.created_at, ar.updated_at ORDER BY ar.name"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtistRows(rows)
}

// GetTracksByAlbum returns all tracks of an album ordered by disc, track
// number (unnumbered tracks last) and title.
func (db *Database) GetTracksByAlbum(albumID int64) ([]models.Track, error) {
	var exists int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM albums WHERE id = ?", albumID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("album with ID %d not found", albumID)
	}

	rows, err := db.conn.Query(`
		SELECT id, album_id, title, track_number, disc_number, duration_ms, path, file_size,
		       format, codec, sample_rate, bits_per_sample, channels, is_lossless, is_high_resolution,
		       created_at, updated_at
		FROM tracks
		WHERE album_id = ?
		ORDER BY disc_number, track_number IS NULL, track_number, title`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// GetTracksByArtist returns all tracks across an artist's albums, ordered by
// album title, then disc, track number and title.
func (db *Database) GetTracksByArtist(artistID int64) ([]models.Track, error) {
	var exists int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM artists WHERE id = ?", artistID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("artist with ID %d not found", artistID)
	}

	rows, err := db.conn.Query(`
		SELECT t.id, t.album_id, t.title, t.track_number, t.disc_number, t.duration_ms, t.path, t.file_size,
		       t.format, t.codec, t.sample_rate, t.bits_per_sample, t.channels, t.is_lossless, t.is_high_resolution,
		       t.created_at, t.updated_at
		FROM tracks t
		JOIN albums a ON t.album_id = a.id
		WHERE a.artist_id = ?
		ORDER BY a.title, t.disc_number, t.track_number IS NULL, t.track_number, t.title`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// Search returns albums and artists whose title or name contains the query
// substring.
func (db *Database) Search(query string) (models.SearchResults, error) {
	albums, err := db.GetAlbums(query)
	if err != nil {
		return models.SearchResults{}, err
	}
	artists, err := db.GetArtists(query)
	if err != nil {
		return models.SearchResults{}, err
	}
	return models.SearchResults{Albums: albums, Artists: artists}, nil
}

// GetDRValue returns the stored DR value for an album directory, or nil when
// the album has none (or does not exist).
func (db *Database) GetDRValue(albumPath string) (*string, error) {
	var dr sql.NullString
	err := db.getDRValueStmt.QueryRow(albumPath).Scan(&dr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !dr.Valid {
		return nil, nil
	}
	return &dr.String, nil
}

// UpdateDRValue sets (or clears, with nil) the DR value for the album at the
// given directory path.
func (db *Database) UpdateDRValue(albumPath string, drValue *string) error {
	_, err := db.updateDRValueStmt.Exec(drValue, albumPath)
	if err != nil {
		db.logger.WithError(err).WithField("album_path", albumPath).Error("Failed to update DR value")
	}
	return err
}

// GetAllTrackPaths returns the path of every track in the catalog. Used by
// the reconciliation pass to detect files removed while the engine was down.
func (db *Database) GetAllTrackPaths() ([]string, error) {
	rows, err := db.conn.Query("SELECT path FROM tracks ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// WithBatch runs fn inside a single transaction so a batch of catalog
// mutations either fully applies or fully rolls back.
func (db *Database) WithBatch(fn func(tx *sql.Tx) error) error {
	return db.withTx(fn)
}

// BatchRemoveTracks deletes the given track paths and prunes newly empty
// albums and artists, all in one transaction.
func (db *Database) BatchRemoveTracks(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		stmt := tx.Stmt(db.removeTrackStmt)
		defer stmt.Close()
		for _, path := range paths {
			if _, err := stmt.Exec(path); err != nil {
				return fmt.Errorf("failed to remove track %s: %w", path, err)
			}
		}
		return pruneOrphans(tx)
	})
}

// RemoveTracksInDirectory deletes every track under the given directory and
// prunes newly empty albums and artists.
func (db *Database) RemoveTracksInDirectory(dir string) error {
	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM tracks WHERE path LIKE ?", dir+"/%"); err != nil {
			return fmt.Errorf("failed to remove tracks in %s: %w", dir, err)
		}
		return pruneOrphans(tx)
	})
}

// pruneOrphans removes albums with no remaining tracks, then artists with no
// remaining albums. Track -> Album -> Artist is a bounded two-hop ownership
// chain, so two fixed passes suffice.
func pruneOrphans(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM albums WHERE id NOT IN (SELECT DISTINCT album_id FROM tracks)"); err != nil {
		return fmt.Errorf("failed to prune empty albums: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM artists WHERE id NOT IN (SELECT DISTINCT artist_id FROM albums)"); err != nil {
		return fmt.Errorf("failed to prune empty artists: %w", err)
	}
	return nil
}

// GetOrCreateArtist resolves an artist by exact name within the transaction,
// creating the row when absent.
func (db *Database) GetOrCreateArtist(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM artists WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := tx.Exec("INSERT INTO artists (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artist %s: %w", name, err)
	}
	return result.LastInsertId()
}

// GetOrCreateAlbum resolves an album by its (artist, title, year) natural key
// within the transaction, updating the mutable fields when it exists and
// creating the row when absent.
func (db *Database) GetOrCreateAlbum(tx *sql.Tx, artistID int64, info AlbumInfo) (int64, error) {
	var id int64
	err := tx.QueryRow(
		"SELECT id FROM albums WHERE artist_id = ? AND title = ? AND year IS ?",
		artistID, info.Title, info.Year).Scan(&id)
	if err == nil {
		_, err = tx.Exec(`
			UPDATE albums
			SET path = ?, genre = ?, compilation = ?, artwork_path = ?, format = ?,
			    bits_per_sample = ?, sample_rate = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			info.Path, info.Genre, info.Compilation, info.ArtworkPath, info.Format,
			info.BitsPerSample, info.SampleRate, id)
		if err != nil {
			return 0, fmt.Errorf("failed to update album %s: %w", info.Title, err)
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	result, err := tx.Exec(`
		INSERT INTO albums (artist_id, title, year, genre, compilation, path, artwork_path,
		                    format, bits_per_sample, sample_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artistID, info.Title, info.Year, info.Genre, info.Compilation, info.Path,
		info.ArtworkPath, info.Format, info.BitsPerSample, info.SampleRate)
	if err != nil {
		return 0, fmt.Errorf("failed to insert album %s: %w", info.Title, err)
	}
	return result.LastInsertId()
}

// UpsertTrack inserts a track keyed by its file path, or updates every
// mutable field of the existing row.
func (db *Database) UpsertTrack(tx *sql.Tx, albumID int64, path string, meta models.TrackMetadata) error {
	var trackNumber *int64
	if meta.TrackNumber > 0 {
		n := int64(meta.TrackNumber)
		trackNumber = &n
	}
	discNumber := int64(1)
	if meta.DiscNumber > 0 {
		discNumber = int64(meta.DiscNumber)
	}

	var id int64
	err := tx.QueryRow("SELECT id FROM tracks WHERE path = ?", path).Scan(&id)
	if err == nil {
		_, err = tx.Exec(`
			UPDATE tracks
			SET album_id = ?, title = ?, track_number = ?, disc_number = ?, duration_ms = ?,
			    file_size = ?, format = ?, codec = ?, sample_rate = ?, bits_per_sample = ?,
			    channels = ?, is_lossless = ?, is_high_resolution = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			albumID, meta.Title, trackNumber, discNumber, meta.DurationMS,
			meta.FileSize, meta.Format, meta.Codec, meta.SampleRate, meta.BitsPerSample,
			meta.Channels, meta.IsLossless, meta.IsHighResolution, id)
		if err != nil {
			return fmt.Errorf("failed to update track %s: %w", path, err)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO tracks (album_id, title, track_number, disc_number, duration_ms, path,
		                    file_size, format, codec, sample_rate, bits_per_sample, channels,
		                    is_lossless, is_high_resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		albumID, meta.Title, trackNumber, discNumber, meta.DurationMS, path,
		meta.FileSize, meta.Format, meta.Codec, meta.SampleRate, meta.BitsPerSample,
		meta.Channels, meta.IsLossless, meta.IsHighResolution)
	if err != nil {
		return fmt.Errorf("failed to insert track %s: %w", path, err)
	}
	return nil
}

// scanAlbumRows scans standard album result sets. Callers must have already
// deferred rows.Close().
func scanAlbumRows(rows *sql.Rows) ([]models.Album, error) {
	var albums []models.Album
	for rows.Next() {
		var album models.Album
		var year, bits, rate sql.NullInt64
		var genre, dr, artwork, format sql.NullString
		var createdAt, updatedAt sql.NullString

		if err := rows.Scan(&album.ID, &album.ArtistID, &album.Title, &year, &genre,
			&album.Compilation, &album.Path, &dr, &artwork, &format, &bits, &rate,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}

		if year.Valid {
			album.Year = &year.Int64
		}
		if genre.Valid {
			album.Genre = &genre.String
		}
		if dr.Valid {
			album.DRValue = &dr.String
		}
		if artwork.Valid {
			album.ArtworkPath = &artwork.String
		}
		if format.Valid {
			album.Format = &format.String
		}
		if bits.Valid {
			album.BitsPerSample = &bits.Int64
		}
		if rate.Valid {
			album.SampleRate = &rate.Int64
		}
		album.CreatedAt = createdAt.String
		album.UpdatedAt = updatedAt.String
		albums = append(albums, album)
	}
	return albums, rows.Err()
}

// scanArtistRows scans standard artist result sets.
func scanArtistRows(rows *sql.Rows) ([]models.Artist, error) {
	var artists []models.Artist
	for rows.Next() {
		var artist models.Artist
		var createdAt, updatedAt sql.NullString
		if err := rows.Scan(&artist.ID, &artist.Name, &artist.AlbumCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		artist.CreatedAt = createdAt.String
		artist.UpdatedAt = updatedAt.String
		artists = append(artists, artist)
	}
	return artists, rows.Err()
}

// scanTrackRows scans standard track result sets.
func scanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		var trackNumber sql.NullInt64
		var createdAt, updatedAt sql.NullString

		if err := rows.Scan(&track.ID, &track.AlbumID, &track.Title, &trackNumber,
			&track.DiscNumber, &track.DurationMS, &track.Path, &track.FileSize,
			&track.Format, &track.Codec, &track.SampleRate, &track.BitsPerSample,
			&track.Channels, &track.IsLossless, &track.IsHighResolution,
			&createdAt, &updatedAt); err != nil {
			return nil, err
		}

		if trackNumber.Valid {
			track.TrackNumber = &trackNumber.Int64
		}
		track.CreatedAt = createdAt.String
		track.UpdatedAt = updatedAt.String
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}
