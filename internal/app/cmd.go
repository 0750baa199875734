package app

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// Options はコマンドライン引数の解析結果。
type Options struct {
	Command Command
	// ConfigPath はYAML設定ファイルのパス。空ならWEEKLY_CONFIGを参照する。
	ConfigPath string
	Help       bool
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// newFlagSet は全サブコマンド共通のフラグ定義を返す。
func newFlagSet(opts *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("weekly", pflag.ContinueOnError)
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file (default: $WEEKLY_CONFIG)")
	fs.BoolVarP(&opts.Help, "help", "h", false, "show help")
	return fs
}

// ParseArgs はフラグとサブコマンドを解析する。フラグはサブコマンドの前後どちらに置いてもよい。
func ParseArgs(args []string) (Options, error) {
	var opts Options
	fs := newFlagSet(&opts)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			opts.Help = true
			return opts, nil
		}
		return opts, fmt.Errorf("invalid arguments: %w", err)
	}
	opts.Command = ParseCommand(fs.Args())
	return opts, nil
}

// PrintUsage は使い方を出力する。
func PrintUsage(w io.Writer) {
	var opts Options
	fs := newFlagSet(&opts)
	fmt.Fprintf(w, `Usage: weekly [flags] [serve|migrate|healthcheck]

Commands:
  serve        apply pending migrations and start the web server (default)
  migrate      apply pending migrations and exit
  healthcheck  request /health on the local server

Flags:
%s`, fs.FlagUsages())
}
