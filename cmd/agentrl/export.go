package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xdotli/agentic-rl/internal/writer"
)

func newExportCmd() *cobra.Command {
	var (
		outDir   string
		compress string
	)

	cmd := &cobra.Command{
		Use:   "export <artifacts.jsonl>",
		Short: "Convert between artifact JSONL and task directories",
		Long: `Expand an artifact JSONL file into runnable task directories, or, with
--compress, read a task directory back into a single-artifact JSONL file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if compress != "" {
				if len(args) != 1 {
					return &configError{err: fmt.Errorf("--compress requires an output artifacts.jsonl path argument")}
				}
				return compressTaskDir(compress, args[0])
			}
			if len(args) != 1 {
				return &configError{err: fmt.Errorf("an artifacts.jsonl path argument is required")}
			}
			return expandArtifacts(args[0], outDir)
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "tasks", "Output directory for expanded tasks")
	cmd.Flags().StringVar(&compress, "compress", "", "Task directory to compress into the given JSONL file")
	return cmd
}

func expandArtifacts(artifactsPath, outDir string) error {
	artifacts, err := writer.ReadArtifacts(artifactsPath)
	if err != nil {
		return &configError{err: err}
	}
	if len(artifacts) == 0 {
		return &configError{err: fmt.Errorf("no artifacts found in %s", artifactsPath)}
	}

	for i := range artifacts {
		taskDir, err := writer.ExpandArtifact(outDir, &artifacts[i])
		if err != nil {
			return err
		}
		fmt.Printf("Expanded %s -> %s\n", artifacts[i].Name, taskDir)
	}
	return nil
}

func compressTaskDir(taskDir, outPath string) error {
	artifact, err := writer.CompressTaskDir(taskDir)
	if err != nil {
		return &configError{err: err}
	}

	w, err := writer.NewArtifactWriter(outPath, discardLogger())
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Write(artifact); err != nil {
		return err
	}
	fmt.Printf("Compressed %s -> %s\n", taskDir, outPath)
	return nil
}
