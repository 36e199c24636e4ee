package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Converter turns the Word-flavoured HTML into a .docx package.
type Converter interface {
	Convert(ctx context.Context, html string) ([]byte, error)
}

const (
	ConverterAltChunk = "altchunk"
	ConverterPandoc   = "pandoc"
)

// NewConverter selects a converter by name; unknown names use altChunk.
func NewConverter(name string) Converter {
	if strings.EqualFold(name, ConverterPandoc) {
		return PandocConverter{}
	}
	return AltChunkConverter{}
}

// AltChunkConverter embeds the HTML as an MHT altChunk. Word imports the
// chunk when the file is opened, so no layout happens here.
type AltChunkConverter struct{}

func (AltChunkConverter) Convert(_ context.Context, html string) ([]byte, error) {
	return PackageDOCX(html)
}

const (
	mhtBoundary     = "----=mhtDocumentPart"
	mhtLocationBase = "file:///C:/fake/"
	chunkRelID      = "htmlChunk"
)

var dataImage = regexp.MustCompile(`src="data:(image/[a-zA-Z0-9.+-]+);base64,([^"]+)"`)

// PackageDOCX writes a minimal WordprocessingML package with an A4 page
// whose body is the given HTML.
func PackageDOCX(html string) ([]byte, error) {
	mht, err := buildMHT(html)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"word/document.xml", []byte(documentXML)},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML)},
		{"word/afchunk.mht", mht},
	}
	modified := time.Now()
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := w.Write(p.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

type mhtImage struct {
	location    string
	contentType string
	data        string
}

// buildMHT moves inline data-URI images into their own MIME parts and
// writes the HTML quoted-printable.
func buildMHT(html string) ([]byte, error) {
	var images []mhtImage
	html = dataImage.ReplaceAllStringFunc(html, func(attr string) string {
		m := dataImage.FindStringSubmatch(attr)
		ext := strings.TrimPrefix(m[1], "image/")
		if i := strings.IndexAny(ext, "+;"); i >= 0 {
			ext = ext[:i]
		}
		loc := fmt.Sprintf("%simage%d.%s", mhtLocationBase, len(images), ext)
		images = append(images, mhtImage{location: loc, contentType: m[1], data: m[2]})
		return `src="` + loc + `"`
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\nContent-Type: multipart/related;\r\n    type=\"text/html\";\r\n    boundary=%q\r\n\r\n", mhtBoundary)

	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(mhtBoundary); err != nil {
		return nil, fmt.Errorf("mht boundary: %w", err)
	}

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", `text/html; charset="utf-8"`)
	htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	htmlHeader.Set("Content-Location", mhtLocationBase+"document.html")
	part, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, fmt.Errorf("mht html part: %w", err)
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := io.WriteString(qp, html); err != nil {
		return nil, fmt.Errorf("mht html body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("mht html body: %w", err)
	}

	for _, img := range images {
		h := textproto.MIMEHeader{}
		h.Set("Content-Location", img.location)
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Type", img.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("mht image part: %w", err)
		}
		if err := writeWrapped(part, img.data, 76); err != nil {
			return nil, fmt.Errorf("mht image body: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mht: %w", err)
	}
	return buf.Bytes(), nil
}

// writeWrapped re-emits base64 text in lines of at most width characters.
func writeWrapped(w io.Writer, b64 string, width int) error {
	clean := strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == ' ' {
			return -1
		}
		return r
	}, b64)
	if _, err := base64.StdEncoding.DecodeString(clean); err != nil {
		return err
	}
	for len(clean) > 0 {
		n := min(width, len(clean))
		if _, err := io.WriteString(w, clean[:n]+"\r\n"); err != nil {
			return err
		}
		clean = clean[n:]
	}
	return nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Default Extension="mht" ContentType="message/rfc822"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// A4 portrait in twentieths of a point, one inch margins.
const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <w:body>
    <w:altChunk r:id="` + chunkRelID + `"/>
    <w:sectPr>
      <w:pgSz w:w="11906" w:h="16838" w:orient="portrait"/>
      <w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="720" w:footer="720" w:gutter="0"/>
    </w:sectPr>
  </w:body>
</w:document>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="` + chunkRelID + `" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/aFChunk" Target="/word/afchunk.mht"/>
</Relationships>`

// PandocConverter shells out to pandoc. Layout is pandoc's, not Word's.
type PandocConverter struct{}

func (PandocConverter) Convert(ctx context.Context, html string) ([]byte, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}
	cmd := exec.CommandContext(ctx, "pandoc",
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"-o", "-",
	)
	cmd.Stdin = strings.NewReader(html)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}
	return output, nil
}
