package domain

// Artist is a credited performer on a track.
type Artist struct {
	Name string `json:"name"`
}

// AlbumImage is one resolution of an album cover.
type AlbumImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Album is the release a track belongs to.
type Album struct {
	Name   string       `json:"name"`
	Images []AlbumImage `json:"images"`
}

// Track is a song search result from the music catalog.
type Track struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []Artist `json:"artists"`
	Album   Album    `json:"album"`
}

// ArtistNames returns the credited artists in order.
func (t *Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// Snapshot denormalizes the track for storage on a letter.
// Artist is the first credited artist and the cover is the first album image.
func (t *Track) Snapshot() *TrackSnapshot {
	s := &TrackSnapshot{
		ID:   t.ID,
		Name: t.Name,
	}
	if len(t.Artists) > 0 {
		s.Artist = t.Artists[0].Name
	}
	if len(t.Album.Images) > 0 {
		s.AlbumCover = t.Album.Images[0].URL
	}
	return s
}

// TrackSnapshot is the immutable copy of a chosen track kept on a letter.
type TrackSnapshot struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Artist        string `json:"artist"`
	AlbumCover    string `json:"album_cover"`
	CoverBlurHash string `json:"cover_blur_hash,omitempty"`
}
