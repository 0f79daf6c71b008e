package geom

import "math"

// #region vec3
// Vec3 is a point or direction in world coordinates (meters).
type Vec3 [3]float64

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v[0] * k, v[1] * k, v[2] * k}
}

// Neg returns -v.
func (v Vec3) Neg() Vec3 {
	return v.Scale(-1)
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Norm returns the L2 norm of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// XY drops the z component.
func (v Vec3) XY() Vec3 {
	return Vec3{v[0], v[1], 0}
}

// Unit returns v scaled to length 1. The zero vector maps to itself.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return Vec3{}
	}
	return v.Scale(1 / n)
}

// OffsetZ returns v shifted along the world z axis.
func (v Vec3) OffsetZ(dz float64) Vec3 {
	return Vec3{v[0], v[1], v[2] + dz}
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Vec3) Vec3 {
	return a.Add(b).Scale(0.5)
}

// #endregion vec3

// #region distances
// CosSim returns the cosine similarity of a and b, or 0 when either is the zero vector.
func CosSim(a, b Vec3) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return a.Dot(b) / (na * nb)
}

// SplitDistance returns the horizontal and vertical distance between a and b.
func SplitDistance(a, b Vec3) (xy, z float64) {
	d := a.Sub(b)
	return d.XY().Norm(), math.Abs(d[2])
}

// L2 returns the euclidean distance between a and b.
func L2(a, b Vec3) float64 {
	return a.Sub(b).Norm()
}

// #endregion distances
