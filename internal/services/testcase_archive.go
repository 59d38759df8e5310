package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/codearena-oj/apiserver/types"
)

var testcaseFilenamePattern = regexp.MustCompile(`^\d+\.(in|out)$`)

const maxTestcaseFileBytes = 16 << 20

// ParseTestcaseArchive reads a tar.gz archive of flat `N.in`/`N.out`
// pairs and returns the test cases ordered by N, plus the SHA-256 hash
// of the archive contents. Numbering must be consecutive starting at 1
// and every case needs both files.
func ParseTestcaseArchive(filename string, data []byte) ([]types.TestCase, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("empty archive data")
	}

	hash := sha256.Sum256(data)
	sha := hex.EncodeToString(hash[:])

	lower := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return nil, "", errors.New("zip archives are not supported")
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
	default:
		return nil, "", errors.New("unsupported archive format")
	}

	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.New("invalid tar.gz archive")
	}
	defer gr.Close()

	testCases, err := readTestcasesFromTar(tar.NewReader(gr))
	if err != nil {
		return nil, "", err
	}
	return testCases, sha, nil
}

func readTestcasesFromTar(tr *tar.Reader) ([]types.TestCase, error) {
	type pair struct {
		in  *string
		out *string
	}
	pairs := make(map[int]*pair)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.New("invalid tar.gz archive")
		}
		if header.FileInfo().IsDir() {
			continue
		}
		if !header.FileInfo().Mode().IsRegular() {
			return nil, errors.New("archive contains unsupported entries")
		}
		if err := validateArchiveFilename(header.Name); err != nil {
			return nil, err
		}

		base := path.Base(path.Clean(header.Name))
		order, ext, err := parseTestcaseFilename(base)
		if err != nil {
			return nil, err
		}

		content, err := io.ReadAll(io.LimitReader(tr, maxTestcaseFileBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read testcase file %s: %w", base, err)
		}
		if len(content) > maxTestcaseFileBytes {
			return nil, fmt.Errorf("testcase file %s exceeds size limit", base)
		}
		text := string(content)

		p := pairs[order]
		if p == nil {
			p = &pair{}
			pairs[order] = p
		}
		switch ext {
		case "in":
			if p.in != nil {
				return nil, fmt.Errorf("duplicate testcase input: %d.in", order)
			}
			p.in = &text
		case "out":
			if p.out != nil {
				return nil, fmt.Errorf("duplicate testcase output: %d.out", order)
			}
			p.out = &text
		}
	}

	if len(pairs) == 0 {
		return nil, errors.New("archive has no testcases")
	}

	orders := make([]int, 0, len(pairs))
	for order, p := range pairs {
		if p.in == nil || p.out == nil {
			return nil, fmt.Errorf("testcase %d must have both .in and .out files", order)
		}
		orders = append(orders, order)
	}

	sort.Ints(orders)
	for i, order := range orders {
		if order != i+1 {
			return nil, errors.New("testcase numbering must be consecutive starting at 1")
		}
	}

	testCases := make([]types.TestCase, 0, len(orders))
	for _, order := range orders {
		p := pairs[order]
		testCases = append(testCases, types.TestCase{
			InputData:      *p.in,
			ExpectedOutput: *p.out,
		})
	}
	return testCases, nil
}

func parseTestcaseFilename(base string) (int, string, error) {
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, "."+ext)
	order, err := strconv.Atoi(name)
	if err != nil || order < 1 {
		return 0, "", fmt.Errorf("invalid testcase filename: %s", base)
	}
	if ext != "in" && ext != "out" {
		return 0, "", fmt.Errorf("invalid testcase filename: %s", base)
	}
	return order, ext, nil
}

func validateArchiveFilename(name string) error {
	clean := path.Clean(name)
	if clean == "." {
		return errors.New("invalid testcase filename")
	}
	base := path.Base(clean)
	if base != clean {
		return errors.New("archive must not contain directories")
	}
	if strings.Contains(base, `\`) {
		return errors.New("invalid testcase filename")
	}
	if !testcaseFilenamePattern.MatchString(base) {
		return fmt.Errorf("invalid testcase filename: %s", base)
	}
	return nil
}
