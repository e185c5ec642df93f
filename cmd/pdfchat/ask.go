package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdf-chat-go/internal/app"
	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/log"

	"github.com/spf13/cobra"
)

func askCMD(cfgPath *string) *cobra.Command {
	var verbose bool
	var ask = &cobra.Command{
		Use:   "ask <file.pdf> [question...]",
		Short: "Process a PDF locally and answer questions about it",
		Long: "Runs extraction, chunking, indexing and answering in-process with memory backends.\n" +
			"Without questions on the command line, questions are read from stdin, one per line.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if verbose {
				log.Init(cfg.Log.Level, "console", "")
				defer log.Sync()
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, app.Options{LocalOnly: true, WithoutRouter: true})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Documents.ProcessDocument(ctx, filepath.Base(args[0]), data)
			if err != nil {
				return fmt.Errorf("处理文档失败: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s: %d pages, %d chunks, mode=%s\n", res.SessionID, res.PageCount, res.ChunkCount, res.Mode)
			if res.DegradedReason != "" {
				fmt.Fprintf(out, "degraded: %s\n", res.DegradedReason)
			}

			answer := func(q string) error {
				r, err := a.Chat.Ask(ctx, res.SessionID, q)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nQ: %s\nA: %s\n(%.2fs, %s)\n", q, r.Answer, r.ResponseTime, r.Path)
				return nil
			}

			if questions := args[1:]; len(questions) > 0 {
				for _, q := range questions {
					if err := answer(q); err != nil {
						return err
					}
				}
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				q := strings.TrimSpace(scanner.Text())
				if q == "" {
					continue
				}
				if err := answer(q); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				}
			}
			return scanner.Err()
		},
	}
	ask.Flags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline logs")
	return ask
}
