package directive

import "go/token"

// Add inserts an ignore entry the way BuildIgnoreMap does. File-level
// ignores (line = -1) start out used.
func (m IgnoreMap) Add(line int, pos token.Pos) {
	m[line] = &ignoreEntry{pos: pos, used: line == fileLevel}
}

// Contains reports whether key was added to the set.
func (s *EffectSet) Contains(key FuncKey) bool {
	if s == nil || s.known == nil {
		return false
	}
	_, exists := s.known[key]
	return exists
}
