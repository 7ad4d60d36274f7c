package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/zurustar/cfgvm/pkg/cli"
	"github.com/zurustar/cfgvm/pkg/compiler"
	"github.com/zurustar/cfgvm/pkg/dump"
	"github.com/zurustar/cfgvm/pkg/logger"
	"github.com/zurustar/cfgvm/pkg/opcode"
	"github.com/zurustar/cfgvm/pkg/script"
	"github.com/zurustar/cfgvm/pkg/vm"
)

// Application はアプリケーションのメインロジックを管理する
type Application struct {
	config *cli.Config
	log    *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New Applicationを作成
// stdout はプログラムの print 出力、stderr はログとダンプの出力先
func New(stdin io.Reader, stdout, stderr io.Writer) *Application {
	return &Application{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

// Run アプリケーションを実行
func (app *Application) Run(args []string) error {
	// 1. コマンドライン引数の解析
	config, err := cli.ParseArgs(args)
	if err != nil {
		return err
	}
	app.config = config

	if app.config.ShowHelp {
		cli.PrintHelp(app.stdout)
		return nil
	}

	// 2. ロガーの初期化
	if err := app.initLogger(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.log.Debug("Application started", "source", app.config.SourcePath)

	// 3. ソースの読み込み
	s, err := script.Load(app.config.SourcePath, app.config.Encoding, app.stdin)
	if err != nil {
		return compiler.NewLoadError(app.config.SourcePath, err)
	}
	app.log.Debug("Source loaded", "name", s.FileName, "size", s.Size, "encoding", app.config.Encoding)

	// 4. コンパイル
	prog, err := compiler.Compile(s.Content,
		compiler.WithMemoryCapacity(app.config.Memory),
		compiler.WithLogger(app.log))
	if err != nil {
		return err
	}
	app.log.Debug("Source compiled successfully", "nodes", prog.Graph.Len(), "functions", len(prog.Functions))

	// 5. 命令グラフの出力（指定されている場合）
	if app.config.DumpPath != "" {
		if err := app.writeDump(prog); err != nil {
			return fmt.Errorf("failed to write dump: %w", err)
		}
	}

	if app.config.CheckOnly {
		app.log.Info("Check passed", "source", s.FileName)
		return nil
	}

	// 6. 実行
	machine := vm.New(prog,
		vm.WithOutput(app.stdout),
		vm.WithMemoryCapacity(app.config.Memory),
		vm.WithTimeout(app.config.Timeout),
		vm.WithLogger(app.log))
	if err := machine.Run(); err != nil {
		return err
	}

	app.log.Debug("Application terminated normally", "steps", machine.Steps())
	return nil
}

// initLogger ロガーを初期化
func (app *Application) initLogger() error {
	if err := logger.InitLogger(app.config.LogLevel, app.stderr); err != nil {
		return err
	}
	app.log = logger.GetLogger()
	return nil
}

// writeDump 命令グラフをYAMLで書き出す（"-" は標準エラー）
func (app *Application) writeDump(prog *opcode.Program) error {
	if app.config.DumpPath == "-" {
		return dump.Write(app.stderr, prog)
	}

	f, err := os.Create(app.config.DumpPath)
	if err != nil {
		return err
	}
	if err := dump.Write(f, prog); err != nil {
		f.Close()
		return err
	}
	app.log.Debug("Dump written", "path", app.config.DumpPath)
	return f.Close()
}
