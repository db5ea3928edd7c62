package api

// Cache-Control header values.
const (
	CacheOneWeek = "public, max-age=604800"
	CacheOneDay  = "public, max-age=86400"
	CacheNoStore = "no-cache"
)
