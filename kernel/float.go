package kernel

// Float is the set of scalar types box coordinates and scores may use.
type Float interface {
	~float32 | ~float64
}
