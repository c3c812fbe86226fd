package ingest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextPlain(t *testing.T) {
	got, err := ExtractText("notes.txt", []byte("перший  рядок\n\nдругий\tрядок"))
	require.NoError(t, err)
	assert.Equal(t, "перший рядок другий рядок", got)
}

func TestExtractTextMarkdownByExtension(t *testing.T) {
	got, err := ExtractText("readme.md", []byte("# Заголовок\n\nтекст"))
	require.NoError(t, err)
	assert.Equal(t, "# Заголовок текст", got)
}

func TestExtractTextEmpty(t *testing.T) {
	_, err := ExtractText("empty.txt", nil)
	assert.Error(t, err)
}

func TestExtractTextRejectsBinary(t *testing.T) {
	data := append([]byte{0x00, 0x01, 0x02}, bytes.Repeat([]byte{0xFF, 0x00}, 100)...)
	_, err := ExtractText("blob.bin", data)
	assert.Error(t, err)
}

func TestExtractTextFakePDF(t *testing.T) {
	// Extension says pdf but the magic bytes are absent.
	_, err := ExtractText("paper.pdf", []byte{0x00, 0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractTextDOCX(t *testing.T) {
	data := buildDOCX(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Перше речення.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Друге речення.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	got, err := ExtractText("lecture.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "Перше речення. Друге речення.", got)
}

func TestExtractTextZipWithoutDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("unrelated.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("text"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ExtractText("archive.docx", buf.Bytes())
	assert.Error(t, err)
}
