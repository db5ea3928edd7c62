package domain

import "math/rand/v2"

// ColorClasses is the fixed card palette. A letter draws one at creation.
var ColorClasses = []string{"card-1", "card-2", "card-3", "card-4", "card-5", "card-6"}

// RandomColorClass picks a palette entry uniformly at random.
func RandomColorClass() string {
	return ColorClasses[rand.IntN(len(ColorClasses))]
}

// ValidColorClass reports whether c belongs to the palette.
func ValidColorClass(c string) bool {
	for _, known := range ColorClasses {
		if c == known {
			return true
		}
	}
	return false
}
