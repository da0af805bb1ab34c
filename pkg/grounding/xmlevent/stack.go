package xmlevent

// Stack holds the local names of the currently open elements. Handlers push
// in OpenTag and pop in CloseTag.
type Stack []string

// Push opens an element
func (s *Stack) Push(name string) { *s = append(*s, name) }

// Pop closes the innermost element; popping an empty stack does nothing
func (s *Stack) Pop() {
	if n := len(*s); n > 0 {
		*s = (*s)[:n-1]
	}
}

// At looks up an element relative to the top: -1 is the current element, -2
// its parent. Out of range yields "".
func (s Stack) At(offset int) string {
	i := len(s) + offset
	if offset >= 0 || i < 0 {
		return ""
	}
	return s[i]
}
