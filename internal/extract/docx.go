package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// partNameRe and partNameRe2 cover both attribute orders of the main-part Override.
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	paragraphRe = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*)?>(.*?)</w:p>`)
	headingRe   = regexp.MustCompile(`<w:pStyle\s+w:val="(?i:heading|Titre|Überschrift)\s*([1-6])"`)
	titleRe     = regexp.MustCompile(`<w:pStyle\s+w:val="Title"`)
	listRe      = regexp.MustCompile(`<w:numPr>`)
	// runTokenRe matches text nodes, tabs and breaks in document order.
	runTokenRe = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>|<w:tab\s*/>|<w:br\s*/>|<w:cr\s*/>`)
)

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// findDocxMainDocumentPath returns the main document part named in [Content_Types].xml
// without its leading slash, or "" when none is declared.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return ""
		}
		content := string(data)
		if m := partNameRe.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		if m := partNameRe2.FindStringSubmatch(content); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
		return ""
	}
	return ""
}

// extractDOCX renders the main document part one paragraph per line.
// Heading styles become "#" prefixes and numbered paragraphs become list items.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open DOCX: not a zip: %w", err)
	}

	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		docXML, err = readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("DOCX part %s not found", docPath)
	}
	return renderDocumentXML(string(docXML)), nil
}

func renderDocumentXML(doc string) string {
	var b strings.Builder
	for _, p := range paragraphRe.FindAllStringSubmatch(doc, -1) {
		body := p[1]
		text := paragraphText(body)
		if strings.TrimSpace(text) == "" {
			b.WriteString("\n")
			continue
		}
		switch {
		case headingRe.MatchString(body):
			level, _ := strconv.Atoi(headingRe.FindStringSubmatch(body)[1])
			b.WriteString("\n" + strings.Repeat("#", level) + " " + text + "\n\n")
		case titleRe.MatchString(body):
			b.WriteString("\n# " + text + "\n\n")
		case listRe.MatchString(body):
			b.WriteString("- " + text + "\n")
		default:
			b.WriteString(text + "\n\n")
		}
	}
	return b.String()
}

func paragraphText(body string) string {
	var b strings.Builder
	for _, m := range runTokenRe.FindAllStringSubmatch(body, -1) {
		switch {
		case strings.HasPrefix(m[0], "<w:tab"):
			b.WriteByte('\t')
		case strings.HasPrefix(m[0], "<w:br"), strings.HasPrefix(m[0], "<w:cr"):
			b.WriteByte('\n')
		default:
			b.WriteString(html.UnescapeString(m[1]))
		}
	}
	return b.String()
}
