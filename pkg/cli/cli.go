package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zurustar/cfgvm/pkg/script"
	"github.com/zurustar/cfgvm/pkg/vm"
)

// Config はコマンドライン引数から解析された設定を保持する
type Config struct {
	SourcePath string        // ソースファイルのパス（"-" は標準入力）
	Encoding   string        // ソースの文字エンコーディング
	Memory     int           // メモリ容量（セル数）
	DumpPath   string        // 命令グラフのYAML出力先（"-" は標準エラー、空は出力しない）
	Timeout    time.Duration // タイムアウト時間（0は無制限）
	LogLevel   string        // ログレベル（debug, info, warn, error）
	CheckOnly  bool          // コンパイルのみ行い実行しない
	ShowHelp   bool          // ヘルプ表示フラグ
}

// UsageError は引数の誤りを表す
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// boolFlags は値を取らないフラグ
var boolFlags = map[string]bool{
	"-h": true, "--help": true, "-help": true,
	"-c": true, "--check": true, "-check": true,
}

// ParseArgs コマンドライン引数を解析してConfigを返す
func ParseArgs(args []string) (*Config, error) {
	// 引数を並べ替え：フラグを前に、位置引数を後ろに
	reorderedArgs := reorderArgs(args)

	fs := flag.NewFlagSet("cfgvm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	config := &Config{}

	var timeoutSec int
	fs.IntVar(&timeoutSec, "timeout", 0, "タイムアウト時間（秒）")
	fs.IntVar(&timeoutSec, "t", 0, "タイムアウト時間（秒）（短縮形）")
	fs.StringVar(&config.LogLevel, "log-level", "info", "ログレベル（debug, info, warn, error）")
	fs.StringVar(&config.LogLevel, "l", "info", "ログレベル（短縮形）")
	fs.StringVar(&config.Encoding, "encoding", "", "ソースの文字エンコーディング")
	fs.StringVar(&config.Encoding, "e", "", "ソースの文字エンコーディング（短縮形）")
	fs.IntVar(&config.Memory, "memory", 0, "メモリ容量（セル数）")
	fs.IntVar(&config.Memory, "m", 0, "メモリ容量（短縮形）")
	fs.StringVar(&config.DumpPath, "dump", "", "命令グラフをYAMLで出力")
	fs.StringVar(&config.DumpPath, "d", "", "命令グラフをYAMLで出力（短縮形）")
	fs.BoolVar(&config.CheckOnly, "check", false, "コンパイルのみ")
	fs.BoolVar(&config.CheckOnly, "c", false, "コンパイルのみ（短縮形）")
	fs.BoolVar(&config.ShowHelp, "help", false, "ヘルプを表示")
	fs.BoolVar(&config.ShowHelp, "h", false, "ヘルプを表示（短縮形）")

	if err := fs.Parse(reorderedArgs); err != nil {
		return nil, &UsageError{Err: err}
	}

	// 環境変数からの設定（コマンドラインフラグが優先）
	if timeoutSec == 0 {
		if timeoutEnv := os.Getenv("CFGVM_TIMEOUT"); timeoutEnv != "" {
			if t, err := strconv.Atoi(timeoutEnv); err == nil && t > 0 {
				timeoutSec = t
			}
		}
	}

	if config.LogLevel == "info" {
		if logLevelEnv := os.Getenv("LOG_LEVEL"); logLevelEnv != "" {
			config.LogLevel = strings.ToLower(logLevelEnv)
		}
	}

	if config.Encoding == "" {
		config.Encoding = os.Getenv("CFGVM_ENCODING")
	}
	if config.Encoding == "" {
		config.Encoding = script.DefaultEncoding
	}

	if config.Memory == 0 {
		if memoryEnv := os.Getenv("CFGVM_MEMORY"); memoryEnv != "" {
			m, err := strconv.Atoi(memoryEnv)
			if err != nil {
				return nil, &UsageError{Err: fmt.Errorf("invalid CFGVM_MEMORY: %q", memoryEnv)}
			}
			config.Memory = m
		}
	}
	if config.Memory == 0 {
		config.Memory = vm.DefaultMemoryCapacity
	}

	// タイムアウトの検証
	if timeoutSec < 0 {
		return nil, &UsageError{Err: fmt.Errorf("timeout must be non-negative, got %d", timeoutSec)}
	}
	config.Timeout = time.Duration(timeoutSec) * time.Second

	// メモリ容量の検証
	if config.Memory < 0 {
		return nil, &UsageError{Err: fmt.Errorf("memory must be positive, got %d", config.Memory)}
	}

	// ログレベルの検証
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return nil, &UsageError{Err: fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.LogLevel)}
	}

	// 位置引数（ソースファイルのパス）
	switch fs.NArg() {
	case 0:
		if !config.ShowHelp {
			return nil, &UsageError{Err: fmt.Errorf("source file is required")}
		}
	case 1:
		config.SourcePath = fs.Arg(0)
	default:
		return nil, &UsageError{Err: fmt.Errorf("expected one source file, got %d", fs.NArg())}
	}

	return config, nil
}

// reorderArgs 引数を並べ替えて、フラグを前に、位置引数を後ろに配置する
// 単独の "-" は標準入力を表す位置引数として扱う
func reorderArgs(args []string) []string {
	var flags []string
	var positional []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// フラグかどうかを判定（-または--で始まる）
		if len(arg) > 1 && arg[0] == '-' {
			flags = append(flags, arg)

			// 値を取るフラグなら次の引数も追加（-d - のように "-" も値になりうる）
			if boolFlags[arg] || strings.Contains(arg, "=") {
				continue
			}
			if i+1 < len(args) {
				next := args[i+1]
				if next == "-" || len(next) == 0 || next[0] != '-' {
					i++
					flags = append(flags, next)
				}
			}
		} else {
			// 位置引数
			positional = append(positional, arg)
		}
	}

	// フラグを前に、位置引数を後ろに配置
	// "--" で flag パッケージの解析を打ち切り、"-" を位置引数として残す
	if len(positional) > 0 {
		flags = append(flags, "--")
	}
	return append(flags, positional...)
}

// PrintHelp ヘルプメッセージを表示
func PrintHelp(w io.Writer) {
	fmt.Fprintf(w, `cfgvm - compile and run control-flow graph programs

Usage:
  cfgvm [options] <source>

Arguments:
  source        ソースファイルのパス（"-" で標準入力から読み込む）

Options:
  -e, --encoding <name>       ソースの文字エンコーディング: utf-8, sjis など（デフォルト: utf-8）
  -m, --memory <cells>        メモリ容量（デフォルト: %d）
  -d, --dump <path>           命令グラフをYAMLで出力（"-" で標準エラー）
  -c, --check                 コンパイルのみ行い実行しない
  -t, --timeout <seconds>     指定秒数後に実行を中断（デフォルト: 無制限）
  -l, --log-level <level>     ログレベル: debug, info, warn, error（デフォルト: info）
  -h, --help                  このヘルプを表示

Environment Variables:
  CFGVM_ENCODING=<name>       ソースの文字エンコーディング
  CFGVM_MEMORY=<cells>        メモリ容量
  CFGVM_TIMEOUT=<seconds>     タイムアウト時間（秒）
  LOG_LEVEL=<level>           ログレベル

Examples:
  cfgvm prog.cfg                    プログラムを実行
  cfgvm --check prog.cfg            構文チェックのみ
  cfgvm -d graph.yaml prog.cfg      命令グラフを出力して実行
  cfgvm -e sjis prog.cfg            Shift-JISのソースを実行
  cat prog.cfg | cfgvm -            標準入力から実行
`, vm.DefaultMemoryCapacity)
}
