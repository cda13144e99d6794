package eventlist

import "bytes"

// cursor is a read position over an immutable byte view. peek returns 0
// past the end, which no scanner treats as meaningful input.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) eof() bool { return c.pos >= len(c.buf) }

func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.buf[c.pos]
}

func (c *cursor) advance() {
	if !c.eof() {
		c.pos++
	}
}

func (c *cursor) skipSeparators() {
	for !c.eof() && isSeparator(c.buf[c.pos]) {
		c.pos++
	}
}

// seek moves to the start of the next occurrence of needle.
func (c *cursor) seek(needle []byte) bool {
	i := bytes.Index(c.buf[c.pos:], needle)
	if i < 0 {
		return false
	}
	c.pos += i
	return true
}

func (c *cursor) seekByte(b byte) bool {
	i := bytes.IndexByte(c.buf[c.pos:], b)
	if i < 0 {
		return false
	}
	c.pos += i
	return true
}

// nextObject skips to the next '{'. It stops, returning false, at the
// closing ']' of the array or at the end of input.
func (c *cursor) nextObject() bool {
	for !c.eof() {
		switch c.buf[c.pos] {
		case '{':
			return true
		case ']':
			return false
		}
		c.pos++
	}
	return false
}

// balancedObject consumes a brace-balanced span starting at the current
// '{' and returns the index of its closing '}'. Braces are counted
// everywhere, including inside strings. It returns false if the input ends
// before the span closes.
func (c *cursor) balancedObject() (int, bool) {
	depth := 0
	for !c.eof() {
		switch c.buf[c.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end := c.pos
				c.pos++
				return end, true
			}
		}
		c.pos++
	}
	return 0, false
}
