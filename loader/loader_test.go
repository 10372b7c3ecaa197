package loader

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/types"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRegistryFallsBackToText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.rst", []byte("plain words"))

	r := DefaultRegistry(Options{})
	segs, err := r.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "plain words", segs[0].Text)
	assert.Equal(t, "text", segs[0].Metadata[types.MetaFormat])
}

func TestRegistryExtensionIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register("JSON", NewJSONLoader())

	assert.IsType(t, &JSONLoader{}, r.For("/tmp/a.Json"))
	assert.Equal(t, []string{".json"}, r.Extensions())
}

func TestRegistryClassifiesFailures(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", []byte("{not json"))

	_, err := DefaultRegistry(Options{}).Load(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, types.KindLoad, types.KindOf(err))
	assert.Contains(t, err.Error(), "bad.json")
}

func TestJSONLoaderPrettyPrints(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.json", []byte(`{"name":"svc","ports":[80,443]}`))

	segs, err := NewJSONLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].Text, "\n  \"name\": \"svc\"")
}

func TestYAMLLoader(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.yaml", []byte("# deploy\nname: svc\n---\nreplicas: 2\n"))
	bad := writeFile(t, dir, "b.yml", []byte("key: [unclosed\n"))

	segs, err := NewYAMLLoader().Load(context.Background(), good)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].Text, "# deploy")
	assert.Equal(t, 2, segs[0].Metadata["documents"])

	_, err = NewYAMLLoader().Load(context.Background(), bad)
	assert.Error(t, err)
}

func TestCodeLoaderDetectsLanguage(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.go", []byte("package main\n\nfunc main() {}\n"))
	bin := writeFile(t, dir, "blob.py", []byte{0x00, 0x01, 0x02, 0x00, 0xff, 0x00})

	segs, err := NewCodeLoader().Load(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Go", segs[0].Metadata[types.MetaLanguage])

	_, err = NewCodeLoader().Load(context.Background(), bin)
	assert.ErrorIs(t, err, ErrBinaryContent)
}

func writeDOCX(t *testing.T, path string, documentXML, coreXML string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	if coreXML != "" {
		w, err = zw.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = w.Write([]byte(coreXML))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestDOCXLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.docx")
	writeDOCX(t, path,
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
			<w:p><w:r><w:t>Install </w:t></w:r><w:r><w:t>the CLI.</w:t></w:r></w:p>
			<w:p><w:r><w:t>Run it.</w:t></w:r></w:p>
		</w:body></w:document>`,
		`<cp:coreProperties xmlns:cp="x" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Guide</dc:title></cp:coreProperties>`)

	segs, err := NewDOCXLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Install the CLI.\nRun it.", segs[0].Text)
	assert.Equal(t, "Guide", segs[0].Metadata["title"])
}

func TestDOCXLoaderKeepsNestedText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manual.docx")
	writeDOCX(t, path,
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body>
			<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr><w:r><w:t xml:space="preserve">See </w:t></w:r><w:hyperlink r:id="rId5"><w:r><w:t>INSTALL GUIDE</w:t></w:r></w:hyperlink></w:p>
			<w:tbl><w:tr><w:tc><w:p><w:r><w:t>TABLE CELL</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>B2</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
			<w:sdt><w:sdtContent><w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Value</w:t><w:br/><w:t>Next</w:t></w:r></w:p></w:sdtContent></w:sdt>
			<w:sectPr><w:pgSz w:w="12240"/></w:sectPr>
		</w:body></w:document>`, "")

	segs, err := NewDOCXLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "See INSTALL GUIDE\nTABLE CELL\nB2\nName\tValue\nNext", segs[0].Text)
	assert.NotContains(t, segs[0].Metadata, "title")
}

func TestDOCXLoaderRejectsNonArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fake.docx", []byte("not a zip"))

	_, err := NewDOCXLoader().Load(context.Background(), path)
	assert.Error(t, err)
}

func TestPDFLoaderRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.pdf", []byte("this is not a pdf"))

	_, err := NewPDFLoader(0, 0).Load(context.Background(), path)
	assert.Error(t, err)
}
