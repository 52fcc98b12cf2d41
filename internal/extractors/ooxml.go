package extractors

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxPartSize caps how much of a single archive member is read.
const maxPartSize = 64 << 20

var errPartNotFound = fmt.Errorf("part not found")

// openPackage opens an Office Open XML package.
func openPackage(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// readPart reads a named member of the package.
func readPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, maxPartSize))
	}
	return nil, fmt.Errorf("%w: %s", errPartNotFound, name)
}

// decodePart unmarshals a package member into v.
func decodePart(zr *zip.Reader, name string, v any) error {
	content, err := readPart(zr, name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(content, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// relationships is a .rels part.
type relationships struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// resolveTarget resolves a relationship target against the directory of its source part.
func resolveTarget(sourceDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(sourceDir, target))
}

// xmlNode is a generic element tree, used where text order matters more than schema.
type xmlNode struct {
	XMLName xml.Name
	Text    string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// skipped elements hold properties, deleted text or floating content
var skippedNodes = map[string]bool{
	"pPr": true, "rPr": true, "endParaRPr": true,
	"delText": true, "instrText": true,
	"drawing": true, "pict": true, "AlternateContent": true,
}

// plainText concatenates the text runs below n in document order.
func (n xmlNode) plainText() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n xmlNode) writeText(sb *strings.Builder) {
	switch n.XMLName.Local {
	case "t":
		sb.WriteString(n.Text)
		return
	case "tab":
		sb.WriteByte('\t')
		return
	case "br", "cr":
		sb.WriteByte('\n')
		return
	}
	if skippedNodes[n.XMLName.Local] {
		return
	}
	for _, child := range n.Nodes {
		child.writeText(sb)
	}
}

// joinParagraphs renders paragraphs one per line.
func joinParagraphs(paragraphs []xmlNode) string {
	lines := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		lines[i] = p.plainText()
	}
	return strings.Join(lines, "\n")
}
