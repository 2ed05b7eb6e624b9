//stmbarrier:ignore
package stmbarrier

func fileIgnored(n *Node) {
	n.next = n
}
