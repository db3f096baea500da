package models

import "testing"

func TestNodeKind(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want Kind
	}{
		{"folder", Node{Type: TypeFolder, Name: "photos.png"}, KindFolder},
		{"pdf mime", Node{Type: TypeFile, Name: "a.bin", Mime: "application/pdf"}, KindPDF},
		{"image mime", Node{Type: TypeFile, Name: "a", Mime: "image/png"}, KindImage},
		{"video mime", Node{Type: TypeFile, Name: "a", Mime: "video/mp4"}, KindVideo},
		{"audio mime", Node{Type: TypeFile, Name: "a", Mime: "audio/mpeg"}, KindAudio},
		{"code by ext", Node{Type: TypeFile, Name: "main.go", Mime: "text/plain; charset=utf-8"}, KindCode},
		{"sheet by ext", Node{Type: TypeFile, Name: "Budget.XLSX"}, KindSpreadsheet},
		{"slides by ext", Node{Type: TypeFile, Name: "deck.pptx"}, KindPresentation},
		{"pdf by ext", Node{Type: TypeFile, Name: "doc.pdf", Mime: "application/octet-stream"}, KindPDF},
		{"fallback", Node{Type: TypeFile, Name: "notes.txt", Mime: "text/plain"}, KindDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Kind(); got != tt.want {
				t.Errorf("Kind() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNodeExt(t *testing.T) {
	n := Node{Name: "Archive.TAR.GZ"}
	if n.Ext() != "gz" {
		t.Errorf("expected gz, got %s", n.Ext())
	}
	n = Node{Name: "README"}
	if n.Ext() != "" {
		t.Errorf("expected empty ext, got %s", n.Ext())
	}
}

func TestTokensEmpty(t *testing.T) {
	if !(Tokens{}).Empty() {
		t.Error("zero tokens should be empty")
	}
	if (Tokens{RefreshToken: "r"}).Empty() {
		t.Error("tokens with refresh should not be empty")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "-"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{8 << 20, "8 MB"},
		{3 << 30, "3 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFolderFromRoute(t *testing.T) {
	for in, want := range map[string]string{"root": "", "": "", "/": "", " root ": "", "abc": "abc", "/abc/": "abc"} {
		if got := FolderFromRoute(in); got != want {
			t.Errorf("FolderFromRoute(%q) = %q, want %q", in, got, want)
		}
	}
}
