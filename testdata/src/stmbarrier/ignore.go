package stmbarrier

func ignoredLine(n *Node) int {
	//stmbarrier:ignore
	a := n.val
	return a
}

func ignoredSameLine(n *Node) {
	n.val = 1 //stmbarrier:ignore
}

func afterIgnored(n *Node) int {
	a := n.val //stmbarrier:ignore

	return a + n.val // want `barrier A2R \(full\) on n before load of n.val`
}

//stmbarrier:ignore
func ignoredFunc(n *Node) int {
	n.next = n
	return n.val
}

func unusedIgnore() int {
	//stmbarrier:ignore // want "unused stmbarrier:ignore directive"

	return 0
}
