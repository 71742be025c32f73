package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theojepsen/nuevomatch/nmtype"
)

func newClassifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <blob> <trace>",
		Short: "Classify every header in a trace file and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(args[0], args[1], flags)
		},
	}
}

func runClassify(blobPath, tracePath string, flags *globalFlags) error {
	c, cleanup, err := loadContainer(blobPath, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("nuevomatch-classify: open %s: %w", tracePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lineNo++
		header, err := parseTraceLine(line)
		if err != nil {
			return fmt.Errorf("nuevomatch-classify: trace line %d: %w", lineNo, err)
		}
		out := c.Classify(header)
		if out.IsMatch() {
			fmt.Printf("%d priority=%d action=%d\n", lineNo, out.Priority, out.Action)
		} else {
			fmt.Printf("%d nomatch\n", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("nuevomatch-classify: read %s: %w", tracePath, err)
	}

	maybePrintStats(c, flags)
	return nil
}

// parseTraceLine reads a trace packet: six whitespace-separated
// decimal field values in the fixed schema order (src dst sport dport
// proto tos), the simplest concrete input the classify subcommand can
// exercise without dragging in a real packet decoder.
func parseTraceLine(line string) (*nmtype.PacketHeader, error) {
	fields := strings.Fields(line)
	if len(fields) != nmtype.FieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", nmtype.FieldCount, len(fields))
	}
	var h nmtype.PacketHeader
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid field %d (%q): %w", i, f, err)
		}
		h[i] = uint32(v)
	}
	return &h, nil
}
