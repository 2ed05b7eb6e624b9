package stmbarrier

//stmbarrier:safe
func hash(n *Node) int { return 0 }

//stmbarrier:releases
func yield() {}

//stmbarrier:immutable
type Key struct{ id int }

type Entry struct {
	id  int //stmbarrier:immutable
	val int
}

func safeBetween(n *Node) int {
	a := n.val // want `barrier A2R \(full\) on n before load of n.val`
	_ = hash(n)
	return a + n.val
}

func yieldBetween(n *Node) int {
	a := n.val // want `barrier A2R \(full\) on n before load of n.val`
	yield()
	return a + n.val // want `barrier I2R \(full\) on n before load of n.val`
}

func keyID(k *Key) int {
	return k.id // want `barrier A2I \(full\) on k before load of k.id`
}

func entryFields(e *Entry) int {
	a := e.id // want `barrier A2I \(full\) on e before load of e.id`
	b := e.val // want `barrier I2R \(full\) on e before load of e.val`
	return a + b
}
