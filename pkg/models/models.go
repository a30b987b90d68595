package models

// Artist represents a musical artist in the library. Artists are created
// implicitly when their first album is inserted and pruned once they have no
// remaining albums.
type Artist struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	AlbumCount int64  `json:"albumCount"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// Album represents an album directory in the library. The (ArtistID, Title,
// Year) triple and the directory path are both unique.
type Album struct {
	ID            int64   `json:"id"`
	ArtistID      int64   `json:"artistId"`
	Title         string  `json:"title"`
	Year          *int64  `json:"year,omitempty"`
	Genre         *string `json:"genre,omitempty"`
	Compilation   bool    `json:"compilation"`
	Path          string  `json:"-"` // don't expose file paths to clients
	DRValue       *string `json:"drValue,omitempty"`
	ArtworkPath   *string `json:"artworkPath,omitempty"`
	Format        *string `json:"format,omitempty"`
	BitsPerSample *int64  `json:"bitsPerSample,omitempty"`
	SampleRate    *int64  `json:"sampleRate,omitempty"`
	CreatedAt     string  `json:"createdAt,omitempty"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// Track represents a single audio file. Tracks are upserted keyed on Path and
// deleted when their backing file is confirmed removed.
type Track struct {
	ID               int64  `json:"id"`
	AlbumID          int64  `json:"albumId"`
	Title            string `json:"title"`
	TrackNumber      *int64 `json:"trackNumber,omitempty"`
	DiscNumber       int64  `json:"discNumber"`
	DurationMS       int64  `json:"durationMs"`
	Path             string `json:"-"`
	FileSize         int64  `json:"fileSize"`
	Format           string `json:"format"`
	Codec            string `json:"codec"`
	SampleRate       int64  `json:"sampleRate"`
	BitsPerSample    int64  `json:"bitsPerSample"`
	Channels         int64  `json:"channels"`
	IsLossless       bool   `json:"isLossless"`
	IsHighResolution bool   `json:"isHighResolution"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// SearchResults bundles albums and artists matching a library search.
type SearchResults struct {
	Albums  []Album  `json:"albums"`
	Artists []Artist `json:"artists"`
}

// TrackMetadata is the output of the tag-reading collaborator: the standard
// tags plus the technical stream properties derived from the file itself.
type TrackMetadata struct {
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	Year        int
	Genre       string
	TrackNumber int
	DiscNumber  int

	DurationMS       int64
	FileSize         int64
	Format           string
	Codec            string
	SampleRate       int64
	BitsPerSample    int64
	Channels         int64
	IsLossless       bool
	IsHighResolution bool
}
