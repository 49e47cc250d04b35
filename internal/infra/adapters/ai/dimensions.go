package ai

// aspectRatio maps requested dimensions onto the ratios the hosted image
// models accept.
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 || width == height {
		return "1:1"
	}
	r := float64(width) / float64(height)
	switch {
	case r >= 1.6:
		return "16:9"
	case r > 1:
		return "4:3"
	case r <= 0.625:
		return "9:16"
	default:
		return "3:4"
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
