// cmd/economy/main.go

// 經濟系統的進入點：初始化設定、儲存層與帳本後執行子命令。

package main

import (
	"os"

	"economy/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
