package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal single-font PDF with one text line per page.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	kids := make([]string, 0, len(pages))
	for _, text := range pages {
		pageID := len(objects) + 1
		contentID := pageID + 1
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)

		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", contentID),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

func TestPortableDocument(t *testing.T) {
	data := buildPDF(t,
		"Section 1. Knee surgery is covered after 3 months.",
		"Section 2. Cosmetic procedures are excluded.",
	)

	text, err := PortableDocument.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pages := strings.Split(text, "\n\n")
	if len(pages) != 2 {
		t.Fatalf("expected pages separated by a blank line, got %q", text)
	}
	if !strings.Contains(pages[0], "Knee surgery is covered after 3 months.") || !strings.Contains(pages[1], "Cosmetic procedures are excluded.") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPortableDocumentErrors(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"not a pdf": []byte("Section 1. Knee surgery is covered."),
		"truncated": buildPDF(t, "Section 1.")[:40],
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := PortableDocument.Extract(context.Background(), data); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestPortableDocumentHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := PortableDocument.Extract(ctx, buildPDF(t, "Section 1.")); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPlainText(t *testing.T) {
	text, err := PlainText.Extract(context.Background(), []byte("\xef\xbb\xbfClause 1. Covered."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Clause 1. Covered." {
		t.Fatalf("byte order mark must be dropped, got %q", text)
	}

	if _, err := PlainText.Extract(context.Background(), []byte{0xff, 0xfe, 0xfd}); err == nil {
		t.Fatalf("expected an error for invalid UTF-8")
	}
}

func TestWordDocumentRejectsGarbage(t *testing.T) {
	if _, err := WordDocument.Extract(context.Background(), []byte("not a zip")); err == nil {
		t.Fatalf("expected an error")
	}
}
