package stmbarrier

// ===== Iteration =====

func sumValues(m map[string]int) int {
	n := 0
	for _, v := range m { // want `barrier A2R \(full\) on m before load of m\[\]`
		n += v
	}
	return n
}

func countKeys(m map[string]bool) int {
	n := 0
	for range m { // want `barrier A2R \(full\) on m before load of m\[\]`
		n++
	}
	return n
}

func runes(s string) int {
	n := 0
	for _, r := range s {
		n += int(r)
	}
	return n
}

func bytesOf(s string) int {
	n := 0
	for i := range s {
		n += int(s[i])
	}
	return n
}
