package config

// Persistent state keys (Registry)
const (
	KeyViewLat      = "view_lat"
	KeyViewLon      = "view_lon"
	KeyViewZoom     = "view_zoom"
	KeyDebugOverlay = "debug_overlay"
	KeyFocusPolicy  = "focus_policy"
	KeyFocusAnimate = "focus_animate"
)

var registry = map[string]bool{
	KeyViewLat:      true,
	KeyViewLon:      true,
	KeyViewZoom:     true,
	KeyDebugOverlay: true,
	KeyFocusPolicy:  true,
	KeyFocusAnimate: true,
}

// IsKnownKey reports whether key is a persisted preference of this version.
func IsKnownKey(key string) bool {
	return registry[key]
}
