package loader

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/matthias-truyzelaere/documindr/internal/core/document"
)

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// readDOCX は word/document.xml の段落テキストを取り出す
func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return readXMLText(f)
		}
	}
	return "", errors.New("word/document.xml not found")
}

type slide struct {
	number int
	file   *zip.File
}

// loadPPTX はスライドごとに1単位を作る。page はスライド番号
func loadPPTX(path string) ([]document.Unit, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	var slides []slide
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(strings.ReplaceAll(f.Name, "\\", "/"))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: n, file: f})
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.number - b.number })

	var units []document.Unit
	for _, s := range slides {
		raw, err := readXMLText(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.number, err)
		}
		text := CleanWhitespace(raw)
		if text == "" {
			continue
		}
		meta := baseMetadata(path, CategorySlide)
		meta.Page = s.number
		units = append(units, document.Unit{Text: text, Metadata: meta})
	}
	return units, nil
}

func readXMLText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return ooxmlText(rc)
}

// ooxmlText は WordprocessingML / DrawingML のテキスト要素 (t) だけを集める
// 段落 (p) と改行 (br) は改行、tab はタブに置き換える
func ooxmlText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteString("\t")
			case "br":
				buf.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				buf.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}

	return buf.String(), nil
}
