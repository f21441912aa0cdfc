package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAutoTitle_ShortContentUnchanged(t *testing.T) {
	assert.Equal(t, "hello there", AutoTitle("hello there"))
}

func TestAutoTitle_TruncatesAtFiftyCharsWithEllipsis(t *testing.T) {
	content := strings.Repeat("a", 80)
	title := AutoTitle(content)
	assert.Equal(t, strings.Repeat("a", 50)+"...", title)
}

func TestAutoTitle_ExactlyFiftyCharsUnchanged(t *testing.T) {
	content := strings.Repeat("b", 50)
	assert.Equal(t, content, AutoTitle(content))
}
