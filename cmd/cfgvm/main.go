package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zurustar/cfgvm/pkg/app"
	"github.com/zurustar/cfgvm/pkg/cli"
)

func main() {
	application := app.New(os.Stdin, os.Stdout, os.Stderr)
	if err := application.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code := exitCode(err)
		if code == 2 {
			fmt.Fprintln(os.Stderr, "Run 'cfgvm --help' for usage.")
		}
		os.Exit(code)
	}
}

// exitCode 終了ステータスを決定する（0: 成功、2: 引数の誤り、1: その他の失敗）
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		return 2
	}
	return 1
}
