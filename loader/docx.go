package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"ragchat/types"
)

// DOCXLoader extracts the body text of word/document.xml.
type DOCXLoader struct{}

func NewDOCXLoader() *DOCXLoader { return &DOCXLoader{} }

var errNoDocumentXML = errors.New("word/document.xml not found")

func (l *DOCXLoader) Load(ctx context.Context, path string) ([]types.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("invalid docx archive: %w", err)
	}
	defer reader.Close()

	text, err := extractDocumentText(&reader.Reader)
	if err != nil {
		return nil, err
	}

	md := map[string]any{types.MetaFormat: "docx"}
	if title := extractCoreTitle(&reader.Reader); title != "" {
		md["title"] = title
	}
	return []types.Segment{{Text: text, Metadata: md}}, nil
}

// extractDocumentText walks word/document.xml token by token so text nested
// in hyperlinks, tables and content controls is kept. Paragraphs end a line;
// run-level tabs and breaks are kept as whitespace.
func extractDocumentText(reader *zip.Reader) (string, error) {
	content, err := readZipEntry(reader, "word/document.xml")
	if err != nil {
		return "", err
	}
	if content == nil {
		return "", errNoDocumentXML
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	var (
		b      strings.Builder
		path   []string
		inBody bool
	)
	parent := func() string {
		if len(path) < 2 {
			return ""
		}
		return path[len(path)-2]
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("invalid document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			path = append(path, el.Name.Local)
			if el.Name.Local == "body" {
				inBody = true
			}
			if !inBody || parent() != "r" {
				continue
			}
			switch el.Name.Local {
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "body":
				inBody = false
			case "p":
				if inBody {
					b.WriteByte('\n')
				}
			}
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
		case xml.CharData:
			if inBody && len(path) > 0 && path[len(path)-1] == "t" {
				b.Write(el)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type coreXML struct {
	Title string `xml:"title"`
}

func extractCoreTitle(reader *zip.Reader) string {
	content, err := readZipEntry(reader, "docProps/core.xml")
	if err != nil || content == nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}

// readZipEntry returns nil, nil when the entry is absent.
func readZipEntry(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}
