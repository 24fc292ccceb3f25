package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectorString(t *testing.T) {
	assert.Equal(t, "css:div.rt-td", CSS("div.rt-td").String())
	assert.Equal(t, "xpath://button", XPath("//button").String())
	assert.Equal(t, "id:pagina1", ID("pagina1").String())
	assert.Equal(t, "unknown", By(42).String())
}

func TestSelectorComparable(t *testing.T) {
	m := map[Selector]bool{ID("txtUsuario"): true}
	assert.True(t, m[ID("txtUsuario")])
	assert.False(t, m[CSS("txtUsuario")])
}

func TestLookupString(t *testing.T) {
	assert.Equal(t, "found", Found.String())
	assert.Equal(t, "not_found", NotFound.String())
}
