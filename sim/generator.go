package sim

// Generator creates Count elements of Kind at every activation of Cycle;
// each element starts executing Flow.
type Generator struct {
	index   int
	Name    string
	Kind    string
	Cycle   Cycle
	Count   int
	Flow    *Flow
	created int64
}

// Created returns how many elements the generator has created.
func (g *Generator) Created() int64 {
	return g.created
}

// nextElementID assigns the id of the next element. Only the generator's own
// events call it, one activation at a time.
func (g *Generator) nextElementID() int64 {
	id := int64(g.index+1)*ElementIDStride + g.created
	g.created++
	return id
}
