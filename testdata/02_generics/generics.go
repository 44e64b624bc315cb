package generics

import (
	"fmt"
	"io"
)

type Number interface {
	~int | ~float64
}

type Box[T any] struct {
	Value T
}

type Stats[N int | string] struct {
	Code  N
	Count int
}

type Sum[N Number] struct {
	Acc N
}

type Pipe[T interface {
	fmt.Stringer
	io.Reader
}] struct {
	Src T
}

type Mixed[T interface {
	comparable
	int | string
}] struct {
	V T
}

func NewBox[T any](v T) *Box[T] { return &Box[T]{Value: v} }
