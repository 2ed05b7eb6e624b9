package ir

// =============================================================================
// CFG helpers
//
// Reachability and loop detection over a Routine. These are stateless. The
// solver logs loop headers and debug dumps list unreachable blocks.
// =============================================================================

// CanReach checks if src can reach dst in the CFG using BFS.
//
// A block always reaches itself.
func CanReach(src, dst *Block) bool {
	if src == nil || dst == nil {
		return false
	}
	if src == dst {
		return true
	}

	visited := map[*Block]bool{src: true}
	queue := []*Block{src}

	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]

		for _, l := range block.Exits {
			succ := l.Target
			if succ == dst {
				return true
			}
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return false
}

// Reachable returns the set of blocks reachable from the entry block.
func (r *Routine) Reachable() map[*Block]bool {
	seen := make(map[*Block]bool, len(r.Blocks))
	entry := r.Entry()
	if entry == nil {
		return seen
	}
	stack := []*Block{entry}
	seen[entry] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, l := range b.Exits {
			if !seen[l.Target] {
				seen[l.Target] = true
				stack = append(stack, l.Target)
			}
		}
	}
	return seen
}

// LoopHeaders returns the targets of back-edges, in block order.
//
// An edge b → s is a back-edge when s does not come after b in block order
// and s can reach b again. The reachability check tells real loops apart
// from merge blocks that happen to be numbered before an else branch:
//
//	if cond {        // block 1
//	    ...          // block 2
//	} else {
//	    ...          // block 4
//	}
//	// merge         // block 3: 4 → 3 points backwards, but 3 cannot reach 4
func (r *Routine) LoopHeaders() []*Block {
	var headers []*Block
	marked := make(map[*Block]bool)
	for _, b := range r.Blocks {
		for _, l := range b.Exits {
			s := l.Target
			if s.Index <= b.Index && !marked[s] && CanReach(s, b) {
				marked[s] = true
			}
		}
	}
	for _, b := range r.Blocks {
		if marked[b] {
			headers = append(headers, b)
		}
	}
	return headers
}
