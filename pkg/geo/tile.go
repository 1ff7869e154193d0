package geo

import "math"

// TileBoundingBox covers the box with axis-aligned square tiles of the given
// angular side length. Tiles are emitted row by row from north to south and
// within each row from west to east, giving every tile a stable position in
// the output. Tiles at the south and east fringes extend past the box edge
// rather than being clipped.
func TileBoundingBox(b BoundingBox, sideDeg float64) []BoundingBox {
	if sideDeg <= 0 || math.IsNaN(sideDeg) || math.IsInf(sideDeg, 0) {
		return nil
	}
	rows := int(math.Ceil((b.MaxLat - b.MinLat) / sideDeg))
	cols := int(math.Ceil((b.MaxLon - b.MinLon) / sideDeg))
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	tiles := make([]BoundingBox, 0, rows*cols)
	for r := 0; r < rows; r++ {
		top := b.MaxLat - float64(r)*sideDeg
		for c := 0; c < cols; c++ {
			left := b.MinLon + float64(c)*sideDeg
			tiles = append(tiles, BoundingBox{
				MinLat: top - sideDeg,
				MaxLat: top,
				MinLon: left,
				MaxLon: left + sideDeg,
			})
		}
	}
	return tiles
}
