// SPDX-License-Identifier: MIT

package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToISO1(t *testing.T) {
	assert.Equal(t, "de", ToISO1("deu"))
	assert.Equal(t, "de", ToISO1("ger"))
	assert.Equal(t, "de", ToISO1("de"))
	assert.Equal(t, "he", ToISO1("heb"))
	assert.Equal(t, "en", ToISO1("ENG"))
	assert.Equal(t, "yi", ToISO1("yid"))
	assert.Equal(t, "", ToISO1(""))
	assert.Equal(t, "zz", ToISO1("zz"), "unknown codes pass through")
}

func TestToISO3(t *testing.T) {
	assert.Equal(t, "deu", ToISO3("de"))
	assert.Equal(t, "heb", ToISO3("he"))
	assert.Equal(t, "eng", ToISO3("en"))
	assert.Equal(t, "deu", ToISO3("deu"))
	assert.Equal(t, "", ToISO3(""))
}

func TestSameLanguage(t *testing.T) {
	assert.True(t, SameLanguage("de", "deu"))
	assert.True(t, SameLanguage("heb", "he"))
	assert.False(t, SameLanguage("de", "en"))
	assert.False(t, SameLanguage("", "en"))
}

func TestIsRTLTarget(t *testing.T) {
	assert.True(t, IsRTLTarget("he"))
	assert.True(t, IsRTLTarget("heb"))
	assert.False(t, IsRTLTarget("en"))
	assert.False(t, IsRTLTarget("de"))
}

func TestContainsRTL(t *testing.T) {
	assert.True(t, ContainsRTL("שלום"))
	assert.True(t, ContainsRTL("mixed שלום text"))
	assert.False(t, ContainsRTL("plain latin"))
	assert.False(t, ContainsRTL(""))
}
