package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionFirstLine(t *testing.T) {
	li := NewLineIndex([]byte("fn main() {}\n"))
	line, col := li.Position(0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	line, col = li.Position(3)
	assert.Equal(t, 1, line)
	assert.Equal(t, 4, col)
}

func TestPositionAfterNewline(t *testing.T) {
	li := NewLineIndex([]byte("ab\ncd\n"))
	line, col := li.Position(3)
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)
}

func TestPositionCRLF(t *testing.T) {
	li := NewLineIndex([]byte("ab\r\ncd"))
	line, col := li.Position(4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)
}

func TestPositionLoneCR(t *testing.T) {
	li := NewLineIndex([]byte("ab\rcd"))
	line, col := li.Position(3)
	assert.Equal(t, 2, line)
	assert.Equal(t, 1, col)
}

func TestPositionCountsRunesNotBytes(t *testing.T) {
	// "héllo" - the é is two bytes; columns count scalar values.
	src := []byte("h\xc3\xa9llo")
	li := NewLineIndex(src)
	line, col := li.Position(3) // byte offset after "hé"
	assert.Equal(t, 1, line)
	assert.Equal(t, 3, col)
}

func TestPositionClampsPastEnd(t *testing.T) {
	li := NewLineIndex([]byte("ab"))
	line, col := li.Position(100)
	assert.Equal(t, 1, line)
	assert.Equal(t, 3, col)
}

func TestPositionEmptyFile(t *testing.T) {
	li := NewLineIndex(nil)
	line, col := li.Position(0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)
}
