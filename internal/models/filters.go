package models

// RouteFilter represents filter parameters for listing routes
type RouteFilter struct {
	Name string `form:"name"` // case-insensitive substring
}

// TravelFilter represents query parameters for a travel estimate
type TravelFilter struct {
	Mode          string  `form:"mode"`
	Tier          string  `form:"tier"`
	PixelsPerMile float64 `form:"pixelsPerMile"`
}

// ExportFilter represents query parameters for exporting routes
type ExportFilter struct {
	Format string `form:"format"` // json (default) or geojson
}
