package card

import (
	"fmt"
	"image/color"
)

// hues spreads the six card classes around the purple end of the wheel.
var hues = map[string]float64{
	"card-1": 275,
	"card-2": 300,
	"card-3": 330,
	"card-4": 250,
	"card-5": 200,
	"card-6": 350,
}

// Background returns the fill colour for a card class.
// Unknown classes fall back to card-1.
func Background(class string) color.RGBA {
	h, ok := hues[class]
	if !ok {
		h = hues["card-1"]
	}
	r, g, b := hslToRGB(h, 0.55, 0.62)
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Hex renders the class colour as #RRGGBB for terminal styling.
func Hex(class string) string {
	c := Background(class)
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// hslToRGB converts HSL to RGB.
// h: hue (0-360), s: saturation (0-1), l: lightness (0-1).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	h /= 360.0

	var r1, g1, b1 float64
	if s == 0 {
		r1, g1, b1 = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q

		r1 = hueToRGB(p, q, h+1.0/3.0)
		g1 = hueToRGB(p, q, h)
		b1 = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(r1 * 255), uint8(g1 * 255), uint8(b1 * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
