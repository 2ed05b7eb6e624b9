package stmbarrier

type Node struct {
	val  int
	next *Node
}

type Base struct{ id int }

type Derived struct {
	Base
	extra int
}

func g() {}

// ===== Reads and writes =====

func read(n *Node) int {
	return n.val // want `barrier A2R \(full\) on n before load of n.val`
}

func readTwice(n *Node) int {
	a := n.val // want `barrier A2R \(full\) on n before load of n.val`
	b := n.val
	return a + b
}

func writeScalar(n *Node) {
	n.val = 1 // want `barrier A2V \(local\) on n before store to n.val`
}

func writePointer(n, m *Node) {
	n.next = m // want `barrier A2W \(full\) on n before store to n.next`
}

func readThenWrite(n *Node) {
	v := n.val    // want `barrier A2R \(full\) on n before load of n.val`
	n.val = v + 1 // want `barrier R2V \(local\) on n before store to n.val`
}

func promoted(d *Derived) int {
	return d.id // want `barrier A2R \(full\) on d before load of d.Base.id`
}

// ===== Fresh and local objects =====

func fresh() *Node {
	n := &Node{}
	n.val = 1
	n.next = n
	return n
}

func local() int {
	var x Node
	x.val = 1
	return x.val
}

// ===== Control flow =====

func pick(c bool, a, b *Node) int {
	n := a
	if c {
		n = b
	}
	return n.val // want `barrier A2R \(full\) on \w+ before load of \w+\.val`
}

func bothBranches(c bool, n *Node) int {
	if c {
		_ = n.val // want `barrier A2R \(full\) on n before load of n.val`
	} else {
		_ = n.next // want `barrier A2R \(full\) on n before load of n.next`
	}
	return n.val
}

// ===== Calls =====

func callBetween(n *Node) int {
	a := n.val // want `barrier A2R \(full\) on n before load of n.val`
	g()
	return a + n.val // want `barrier Q2R \(full\) on n before load of n.val`
}

func recvBetween(n *Node, ch chan int) int {
	a := n.val // want `barrier A2R \(full\) on n before load of n.val`
	<-ch
	return a + n.val // want `barrier I2R \(full\) on n before load of n.val`
}

// ===== Pointer comparison =====

func same(a, b *Node) bool {
	return a == b // want `identity compare of a and b`
}

func isNil(n *Node) bool {
	return n == nil
}

// ===== Maps =====

func mapGet(m map[string]int) int {
	return m["k"] // want `barrier A2R \(full\) on m before load of m\[\]`
}

func mapSet(m map[string]int) {
	m["k"] = 1 // want `barrier A2W \(full\) on m before store to m\[\]`
}

// ===== Interfaces =====

func typeAssert(x any) bool {
	_, ok := x.(*Node) // want `barrier A2I \(full\) on x before type check of x`
	return ok
}
