// this file contains a few small image processing utilities
package camera

import "github.com/fpscan/fpscan/imgrec"

// FlipV flips a row major image top to bottom, in place
func FlipV(buf []uint16, width, height int) {
	tmp := make([]uint16, width)
	for top, bot := 0, height-1; top < bot; top, bot = top+1, bot-1 {
		a := buf[top*width : (top+1)*width]
		b := buf[bot*width : (bot+1)*width]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// FlipH flips a row major image left to right, in place
func FlipH(buf []uint16, width, height int) {
	for r := 0; r < height; r++ {
		row := buf[r*width : (r+1)*width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}

// ImRot90 rotates an image 90 degrees clockwise.
// The output is height wide and width tall.
func ImRot90(buf []uint16, width, height int) []uint16 {
	out := make([]uint16, len(buf))
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			// (r, c) lands in row c, column height-1-r of the rotated image
			out[c*height+(height-1-r)] = buf[r*width+c]
		}
	}
	return out
}

// ImRot180 rotates an image 180 degrees
func ImRot180(buf []uint16, width, height int) []uint16 {
	out := make([]uint16, len(buf))
	n := len(buf)
	for i, v := range buf {
		out[n-1-i] = v
	}
	return out
}

// Orient mirrors f left to right when flipH is set, then rotates it clockwise
// by deg degrees.  deg is taken modulo 360 and must be a multiple of 90.
func Orient(f imgrec.Frame, flipH bool, deg int) imgrec.Frame {
	if flipH {
		FlipH(f.Pix, f.Width, f.Height)
	}
	switch ((deg%360)+360)%360 {
	case 90:
		f.Pix = ImRot90(f.Pix, f.Width, f.Height)
		f.Width, f.Height = f.Height, f.Width
	case 180:
		f.Pix = ImRot180(f.Pix, f.Width, f.Height)
	case 270:
		f.Pix = ImRot180(ImRot90(f.Pix, f.Width, f.Height), f.Height, f.Width)
		f.Width, f.Height = f.Height, f.Width
	}
	return f
}
