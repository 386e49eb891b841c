package vision

// AreaFunc extracts the pixel areas of connected foreground components from
// a binary mask. The production implementation is ComponentAreas; tests
// inject deterministic functions to drive the debounce counters directly.
type AreaFunc func(mask []uint8, width, height int) []float64

// ComponentAreas labels 8-connected components of the non-zero pixels in
// mask and returns one area per component. The mask is consumed: visited
// pixels are cleared.
func ComponentAreas(mask []uint8, width, height int) []float64 {
	var areas []float64
	var stack []int

	for start, v := range mask {
		if v == 0 {
			continue
		}

		// Flood fill with an explicit stack; recursion depth would be
		// unbounded for large blobs.
		area := 0.0
		mask[start] = 0
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++

			x := idx % width
			y := idx / width
			for dy := -1; dy <= 1; dy++ {
				yy := y + dy
				if yy < 0 || yy >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= width {
						continue
					}
					n := yy*width + xx
					if mask[n] != 0 {
						mask[n] = 0
						stack = append(stack, n)
					}
				}
			}
		}
		areas = append(areas, area)
	}
	return areas
}
