package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"strings"
	"testing"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		header := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

func TestParseTestcaseArchive(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"2.in":  "second input",
		"1.in":  "first input",
		"1.out": "first output",
		"2.out": "second output",
	})

	testCases, sha, err := ParseTestcaseArchive("cases.tar.gz", data)
	if err != nil {
		t.Fatalf("ParseTestcaseArchive returned error: %v", err)
	}

	if len(testCases) != 2 {
		t.Fatalf("len = %d, want 2", len(testCases))
	}
	if testCases[0].InputData != "first input" || testCases[0].ExpectedOutput != "first output" {
		t.Errorf("case 1 = %+v", testCases[0])
	}
	if testCases[1].InputData != "second input" || testCases[1].ExpectedOutput != "second output" {
		t.Errorf("case 2 = %+v", testCases[1])
	}
	if len(sha) != 64 {
		t.Errorf("sha length = %d, want 64 hex chars", len(sha))
	}
}

func TestParseTestcaseArchiveAcceptsTgz(t *testing.T) {
	data := buildArchive(t, map[string]string{"1.in": "a", "1.out": "b"})
	if _, _, err := ParseTestcaseArchive("cases.tgz", data); err != nil {
		t.Fatalf("tgz rejected: %v", err)
	}
}

func TestParseTestcaseArchiveRejections(t *testing.T) {
	valid := buildArchive(t, map[string]string{"1.in": "a", "1.out": "b"})

	cases := []struct {
		name     string
		filename string
		data     []byte
		wantErr  string
	}{
		{
			name:     "zip",
			filename: "cases.zip",
			data:     valid,
			wantErr:  "zip archives are not supported",
		},
		{
			name:     "unknown extension",
			filename: "cases.rar",
			data:     valid,
			wantErr:  "unsupported archive format",
		},
		{
			name:     "empty data",
			filename: "cases.tar.gz",
			data:     nil,
			wantErr:  "empty archive data",
		},
		{
			name:     "not gzip",
			filename: "cases.tar.gz",
			data:     []byte("plain text"),
			wantErr:  "invalid tar.gz archive",
		},
		{
			name:     "missing output",
			filename: "cases.tar.gz",
			data:     buildArchive(t, map[string]string{"1.in": "a"}),
			wantErr:  "must have both",
		},
		{
			name:     "gap in numbering",
			filename: "cases.tar.gz",
			data:     buildArchive(t, map[string]string{"1.in": "a", "1.out": "b", "3.in": "c", "3.out": "d"}),
			wantErr:  "consecutive",
		},
		{
			name:     "numbering starts at zero",
			filename: "cases.tar.gz",
			data:     buildArchive(t, map[string]string{"0.in": "a", "0.out": "b"}),
			wantErr:  "invalid testcase filename",
		},
		{
			name:     "stray file",
			filename: "cases.tar.gz",
			data:     buildArchive(t, map[string]string{"1.in": "a", "1.out": "b", "readme.txt": "hi"}),
			wantErr:  "invalid testcase filename",
		},
		{
			name:     "nested directory",
			filename: "cases.tar.gz",
			data:     buildArchive(t, map[string]string{"cases/1.in": "a", "cases/1.out": "b"}),
			wantErr:  "directories",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseTestcaseArchive(tc.filename, tc.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestParseTestcaseArchiveDuplicateEntry(t *testing.T) {
	// The map-based builder cannot produce duplicates, so write the
	// same entry twice by hand.
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for _, name := range []string{"1.in", "1.in", "1.out"} {
		content := []byte("x")
		_ = tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))})
		_, _ = tw.Write(content)
	}
	_ = tw.Close()
	_ = gw.Close()

	_, _, err := ParseTestcaseArchive("cases.tar.gz", buf.Bytes())
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("error = %v, want duplicate rejection", err)
	}
}
