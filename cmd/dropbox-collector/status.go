package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ignite/dropbox-collector/internal/store"
)

func newStatusCmd() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the watermark and per-day cache files",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return writeStatus(out, store.NewLayout(cacheDir), wantTable(out))
		},
	}
	cmd.Flags().StringVarP(&cacheDir, "cache-dir", "d", "/var/tmp/dropbox", "cache directory to inspect")
	return cmd
}

// dayFiles is one row of the status listing: the cached artifacts of a
// single calendar day.
type dayFiles struct {
	stamp    string
	events   int
	logBytes int64
	sums     int
	sumBytes int64
}

func writeStatus(out io.Writer, layout store.Layout, asTable bool) error {
	watermark := "(none)"
	if data, err := os.ReadFile(layout.WatermarkFile()); err == nil {
		watermark = strings.TrimSpace(string(data)) + "Z"
	}
	fmt.Fprintf(out, "cache:     %s\n", layout.BaseDir)
	fmt.Fprintf(out, "watermark: %s\n", watermark)

	rows, err := collectDayFiles(layout)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no day files yet")
		return nil
	}

	if asTable {
		renderStatusTable(out, rows)
	} else {
		renderStatusPlain(out, rows)
	}
	return nil
}

// collectDayFiles merges the logs and sums directories into per-day
// rows. A day missing one side (a log with no checksum file, or the
// other way round) still gets a row with zeros for the absent part.
func collectDayFiles(layout store.Layout) ([]dayFiles, error) {
	byStamp := make(map[string]*dayFiles)
	row := func(stamp string) *dayFiles {
		if r, ok := byStamp[stamp]; ok {
			return r
		}
		r := &dayFiles{stamp: stamp}
		byStamp[stamp] = r
		return r
	}

	logs, err := filepath.Glob(filepath.Join(layout.LogsDir(), "dropbox-downloads.*.log"))
	if err != nil {
		return nil, err
	}
	for _, path := range logs {
		stamp := dayStamp(path, "dropbox-downloads.", ".log")
		lines, size, err := fileShape(path)
		if err != nil {
			return nil, err
		}
		r := row(stamp)
		r.events = lines
		r.logBytes = size
	}

	sums, err := filepath.Glob(filepath.Join(layout.SumsDir(), "dropbox-checksums.*.sum"))
	if err != nil {
		return nil, err
	}
	for _, path := range sums {
		stamp := dayStamp(path, "dropbox-checksums.", ".sum")
		lines, size, err := fileShape(path)
		if err != nil {
			return nil, err
		}
		r := row(stamp)
		r.sums = lines
		r.sumBytes = size
	}

	rows := make([]dayFiles, 0, len(byStamp))
	for _, r := range byStamp {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].stamp < rows[j].stamp })
	return rows, nil
}

func dayStamp(path, prefix, suffix string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
}

// fileShape returns the line count and byte size of a file.
func fileShape(path string) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("inspecting %s: %w", path, err)
	}

	lines := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("scanning %s: %w", path, err)
	}
	return lines, fi.Size(), nil
}

func renderStatusTable(out io.Writer, rows []dayFiles) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Day", "Events", "Log Bytes", "Checksums", "Sum Bytes"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.stamp, r.events, r.logBytes, r.sums, r.sumBytes})
	}
	tw.Render()
}

func renderStatusPlain(out io.Writer, rows []dayFiles) {
	fmt.Fprintln(out, "day\tevents\tlog_bytes\tchecksums\tsum_bytes")
	for _, r := range rows {
		fmt.Fprintf(out, "%s\t%d\t%d\t%d\t%d\n", r.stamp, r.events, r.logBytes, r.sums, r.sumBytes)
	}
}

func wantTable(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
