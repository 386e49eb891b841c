package vision

// Binary morphology over 0/255 masks. The close-then-dilate sequence merges
// fragmented foreground blobs before component extraction so a single moving
// object is measured as one area rather than several small ones.

// dilate3x3 writes the 3x3 dilation of src into dst. src and dst must not
// alias and must both be len(width*height).
func dilate3x3(src, dst []uint8, width, height int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var v uint8
			for dy := -1; dy <= 1 && v == 0; dy++ {
				yy := y + dy
				if yy < 0 || yy >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= width {
						continue
					}
					if src[yy*width+xx] != 0 {
						v = 255
						break
					}
				}
			}
			dst[y*width+x] = v
		}
	}
}

// erode3x3 writes the 3x3 erosion of src into dst. Border pixels erode
// against an implicit zero border.
func erode3x3(src, dst []uint8, width, height int) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(255)
			for dy := -1; dy <= 1 && v != 0; dy++ {
				yy := y + dy
				if yy < 0 || yy >= height {
					v = 0
					break
				}
				for dx := -1; dx <= 1; dx++ {
					xx := x + dx
					if xx < 0 || xx >= width || src[yy*width+xx] == 0 {
						v = 0
						break
					}
				}
			}
			dst[y*width+x] = v
		}
	}
}

// closeAndDilate applies a morphological close (dilate then erode) followed
// by two further dilations, in place. scratch must be len(mask) and is
// clobbered.
func closeAndDilate(mask, scratch []uint8, width, height int) {
	dilate3x3(mask, scratch, width, height)
	erode3x3(scratch, mask, width, height)
	dilate3x3(mask, scratch, width, height)
	dilate3x3(scratch, mask, width, height)
}

// boxBlur applies a separable 5-tap box blur from src into dst, suppressing
// single-pixel sensor noise before the background test. scratch must be
// len(src) and is clobbered.
func boxBlur(src, dst, scratch []uint8, width, height int) {
	const radius = 2
	const norm = 2*radius + 1

	// Horizontal pass into scratch.
	for y := 0; y < height; y++ {
		row := y * width
		for x := 0; x < width; x++ {
			var sum int
			for dx := -radius; dx <= radius; dx++ {
				xx := x + dx
				if xx < 0 {
					xx = 0
				} else if xx >= width {
					xx = width - 1
				}
				sum += int(src[row+xx])
			}
			scratch[row+x] = uint8(sum / norm)
		}
	}

	// Vertical pass into dst.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum int
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 {
					yy = 0
				} else if yy >= height {
					yy = height - 1
				}
				sum += int(scratch[yy*width+x])
			}
			dst[y*width+x] = uint8(sum / norm)
		}
	}
}
