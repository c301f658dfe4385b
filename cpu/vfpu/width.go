// Package vfpu translates and interprets the PSP vector floating point
// coprocessor instructions.
package vfpu

import "fmt"

// Width is the element-width class of a register view.
type Width int

const (
	Single Width = iota
	Pair
	Triple
	Quad
	Matrix2
	Matrix3
	Matrix4
)

var widthSizes = [...]int{1, 2, 3, 4, 4, 9, 16}

var widthSuffix = [...]string{".s", ".p", ".t", ".q", ".m2", ".m3", ".m4"}

// Size is the number of elements the view covers.
func (w Width) Size() int { return widthSizes[w] }

func (w Width) Suffix() string { return widthSuffix[w] }

func (w Width) String() string {
	switch w {
	case Single:
		return "single"
	case Pair:
		return "pair"
	case Triple:
		return "triple"
	case Quad:
		return "quad"
	case Matrix2:
		return "2x2"
	case Matrix3:
		return "3x3"
	case Matrix4:
		return "4x4"
	}
	return fmt.Sprintf("width(%d)", int(w))
}

// shape returns the k×l extent of the view and its second base offset for
// selector r.
func (w Width) shape(r int) (fsl, k, l int) {
	switch w {
	case Single:
		return (r >> 5) & 3, 1, 1
	case Pair:
		return (r >> 5) & 2, 2, 1
	case Triple:
		return (r >> 6) & 1, 3, 1
	case Quad:
		return (r >> 5) & 2, 4, 1
	case Matrix2:
		return (r >> 5) & 2, 2, 2
	case Matrix3:
		return (r >> 6) & 1, 3, 3
	case Matrix4:
		return (r >> 5) & 2, 4, 4
	}
	panic(fmt.Sprintf("invalid width %d", int(w)))
}
