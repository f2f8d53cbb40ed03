// Package containerpath decides whether a set of container segments forms one
// continuous path and creates new containers along such a path.
package containerpath

import (
	"gonum.org/v1/gonum/mat"

	"kuwaiba/osp-core/internal/connectivity"
)

// Segment is a container seen as an edge between its two endpoints. A nil
// endpoint is unset and does not become a vertex.
type Segment struct {
	Container connectivity.Ref  `json:"container"`
	A         *connectivity.Ref `json:"a,omitempty"`
	B         *connectivity.Ref `json:"b,omitempty"`
}

type Result struct {
	Valid         bool               `json:"valid"`
	EdgeCount     int                `json:"edge_count"`
	EndpointCount int                `json:"endpoint_count"`
	InteriorCount int                `json:"interior_count"`
	Vertices      []connectivity.Ref `json:"vertices"`
	Degrees       []int              `json:"degrees"`
	// Offending lists the vertices that break the path when Valid is false.
	Offending []connectivity.Ref `json:"offending,omitempty"`
}

// Validate builds the edge x vertex incidence matrix of segments and sums its
// columns. The segments form a single path when every vertex has degree 1 or
// 2, exactly two vertices have degree 1 and the degree-2 vertices number one
// less than the edges. A single segment is always a path; no segments is not.
// A segment whose endpoints are the same vertex counts twice for it.
func Validate(segments []Segment) Result {
	res := Result{EdgeCount: len(segments)}

	index := make(map[string]int)
	for _, s := range segments {
		for _, v := range []*connectivity.Ref{s.A, s.B} {
			if v == nil {
				continue
			}
			if _, ok := index[v.Key()]; ok {
				continue
			}
			index[v.Key()] = len(res.Vertices)
			res.Vertices = append(res.Vertices, *v)
		}
	}

	if len(segments) == 0 || len(res.Vertices) == 0 {
		res.Valid = len(segments) == 1
		return res
	}

	incidence := mat.NewDense(len(segments), len(res.Vertices), nil)
	for i, s := range segments {
		for _, v := range []*connectivity.Ref{s.A, s.B} {
			if v == nil {
				continue
			}
			j := index[v.Key()]
			// Accumulate rather than set: a self-loop touches its vertex
			// twice and so adds 2 to the degree.
			incidence.Set(i, j, incidence.At(i, j)+1)
		}
	}

	res.Degrees = make([]int, len(res.Vertices))
	var outOfRange, ends []connectivity.Ref
	for j := range res.Vertices {
		d := int(mat.Sum(incidence.ColView(j)))
		res.Degrees[j] = d
		switch d {
		case 1:
			res.EndpointCount++
			ends = append(ends, res.Vertices[j])
		case 2:
			res.InteriorCount++
		default:
			outOfRange = append(outOfRange, res.Vertices[j])
		}
	}

	if len(segments) == 1 {
		res.Valid = true
		return res
	}

	res.Valid = len(outOfRange) == 0 &&
		res.EndpointCount == 2 &&
		res.InteriorCount == res.EdgeCount-1
	if res.Valid {
		return res
	}

	switch {
	case len(outOfRange) > 0:
		res.Offending = outOfRange
	case res.EndpointCount > 2:
		res.Offending = ends
	default:
		res.Offending = append([]connectivity.Ref(nil), res.Vertices...)
	}
	return res
}
