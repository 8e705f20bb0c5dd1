package api

import (
	"github.com/samcharles93/convtune/internal/device"
	"github.com/samcharles93/convtune/internal/perfdb"
	"github.com/samcharles93/convtune/internal/problem"
	"github.com/samcharles93/convtune/internal/tuner"
	"github.com/samcharles93/convtune/internal/version"
)

// ResponseError is the body of the "error" member of every failed request.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ProblemRequest is the wire form of a convolution problem. Omitted
// strides, dilations and groups default to 1.
type ProblemRequest struct {
	N         int    `json:"n"`
	C         int    `json:"c"`
	H         int    `json:"h"`
	W         int    `json:"w"`
	K         int    `json:"k"`
	Y         int    `json:"y"`
	X         int    `json:"x"`
	PadH      int    `json:"pad_h,omitempty"`
	PadW      int    `json:"pad_w,omitempty"`
	StrideH   int    `json:"stride_h,omitempty"`
	StrideW   int    `json:"stride_w,omitempty"`
	DilationH int    `json:"dilation_h,omitempty"`
	DilationW int    `json:"dilation_w,omitempty"`
	Groups    int    `json:"groups,omitempty"`
	Bias      bool   `json:"bias,omitempty"`
	DataType  string `json:"dtype,omitempty"`
	Direction string `json:"direction,omitempty"`
}

func (r ProblemRequest) toProblem() (problem.Problem, error) {
	p := problem.Problem{
		N: r.N, C: r.C, H: r.H, W: r.W,
		K: r.K, Y: r.Y, X: r.X,
		PadH: r.PadH, PadW: r.PadW,
		StrideH: r.StrideH, StrideW: r.StrideW,
		DilationH: r.DilationH, DilationW: r.DilationW,
		Groups: r.Groups,
		Bias:   r.Bias,
	}.WithDefaults()
	if r.DataType != "" {
		dt, err := problem.ParseDataType(r.DataType)
		if err != nil {
			return p, newInvalidRequest("problem.dtype", err.Error())
		}
		p.DataType = dt
	}
	if r.Direction != "" {
		d, err := problem.ParseDirection(r.Direction)
		if err != nil {
			return p, newInvalidRequest("problem.direction", err.Error())
		}
		p.Direction = d
	}
	if err := p.Validate(); err != nil {
		return p, newInvalidRequest("problem", err.Error())
	}
	return p, nil
}

type FindRequest struct {
	Problem ProblemRequest `json:"problem"`
	// Request caps the number of results; zero returns all.
	Request int `json:"request,omitempty"`
}

type FindResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Problem string             `json:"problem"`
	Results []tuner.PerfResult `json:"results"`
}

type TuneRequest struct {
	Problem ProblemRequest `json:"problem"`
}

type TuneResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Problem string             `json:"problem"`
	Results []tuner.TuneResult `json:"results"`
}

type SolverInfo struct {
	ID         string `json:"id"`
	Searchable bool   `json:"searchable"`
	Tunable    bool   `json:"tunable"`
}

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

type DeleteResponse struct {
	Key     string `json:"key"`
	Solver  string `json:"solver"`
	Deleted bool   `json:"deleted"`
}

type VersionResponse struct {
	version.Info
	Device device.Info `json:"device"`
}

type recordList = ListResponse[perfdb.Record]
