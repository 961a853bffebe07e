package main

import (
	"bytes"
	"testing"

	"github.com/pevans/collect/category"
	"github.com/stretchr/testify/assert"
)

func TestDirOf(t *testing.T) {
	assert.Equal(t, "/data", dirOf("/data/collect.db"))
	assert.Equal(t, "/data", dirOf("file:/data/collect.db?_busy_timeout=5000"))
	assert.Equal(t, "", dirOf(":memory:"))
	assert.Equal(t, ".", dirOf("collect.db"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestPrintCategoryTable(t *testing.T) {
	var buf bytes.Buffer
	printCategoryTable(&buf, nil)
	assert.Contains(t, buf.String(), "No categories configured.")

	buf.Reset()
	printCategoryTable(&buf, []category.Category{{Kind: "article", Name: "News", ID: 3}})
	assert.Contains(t, buf.String(), "article")
	assert.Contains(t, buf.String(), "News")
}
