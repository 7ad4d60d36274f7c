package script

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// StdinPath はソースを標準入力から読むことを示すパス
const StdinPath = "-"

// DefaultEncoding はエンコーディング未指定時の既定値
const DefaultEncoding = "utf-8"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Script はソースファイルを表す
type Script struct {
	FileName string // ファイル名（標準入力の場合は "-"）
	Content  string // UTF-8に変換された内容
	Size     int64  // 変換前のバイト数
}

// Load ソースファイルを読み込み、指定エンコーディングからUTF-8に変換する
// path が "-" の場合は stdin から読み込む
func Load(path, enc string, stdin io.Reader) (*Script, error) {
	if path == StdinPath {
		if stdin == nil {
			stdin = os.Stdin
		}
		return LoadReader(stdin, StdinPath, enc)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return fromBytes(data, filepath.Base(path), enc)
}

// LoadReader io.Reader からソースを読み込む
func LoadReader(r io.Reader, name, enc string) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return fromBytes(data, name, enc)
}

func fromBytes(data []byte, name, enc string) (*Script, error) {
	content, err := Decode(data, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert encoding of %s: %w", name, err)
	}
	return &Script{
		FileName: name,
		Content:  content,
		Size:     int64(len(data)),
	}, nil
}

// Decode バイト列を指定エンコーディングからUTF-8文字列に変換する
// 空文字列は UTF-8 として扱う。先頭のBOMは取り除く
func Decode(data []byte, enc string) (string, error) {
	e, err := lookupEncoding(enc)
	if err != nil {
		return "", err
	}

	if e != nil {
		reader := transform.NewReader(bytes.NewReader(data), e.NewDecoder())
		data, err = io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", enc, err)
		}
	}

	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

// lookupEncoding エンコーディング名を解決する（UTF-8 の場合は nil）
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "sjis", "shift_jis", "shift-jis", "cp932":
		return japanese.ShiftJIS, nil
	case "euc-jp", "eucjp":
		return japanese.EUCJP, nil
	}

	e, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return e, nil
}
