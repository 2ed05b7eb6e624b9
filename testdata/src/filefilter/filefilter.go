package filefilter

type Node struct{ val int }

func handwritten(n *Node) int {
	return n.val // want `barrier A2R \(full\) on n before load of n.val`
}
