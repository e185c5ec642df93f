// Command pdfchat 提供服务启动与本地问答两个子命令。
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:          "pdfchat",
		Short:        "Chat with PDF documents",
		SilenceUsage: true,
	}

	var cfgPath string
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./configs/config.yaml", "config file")

	root.AddCommand(serveCMD(&cfgPath), askCMD(&cfgPath))
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
