package config

// Value is a setting that is either fixed for the life of the process or
// produced on demand. Callers resolve it once per request, at the point the
// value is needed.
type Value[T any] interface {
	Resolve() T
}

type fixed[T any] struct {
	value T
}

func (f fixed[T]) Resolve() T {
	return f.value
}

// Fixed returns a Value that always resolves to v.
func Fixed[T any](v T) Value[T] {
	return fixed[T]{value: v}
}

// Func is a Value backed by a function.
type Func[T any] func() T

func (f Func[T]) Resolve() T {
	return f()
}
