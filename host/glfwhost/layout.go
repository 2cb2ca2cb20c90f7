package glfwhost

import "image"

// insetRect shrinks r by inset on every side. An inset that swallows the
// rectangle leaves an empty one at its center.
func insetRect(r image.Rectangle, inset int) image.Rectangle {
	if inset <= 0 {
		return r
	}
	out := r.Inset(inset)
	if out.Empty() {
		c := r.Min.Add(r.Size().Div(2))
		return image.Rectangle{Min: c, Max: c}
	}
	return out
}
