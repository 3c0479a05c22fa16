package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// starterConfigPath is where --initialize writes its output.
const starterConfigPath = "/var/tmp/dropbox.initial.yaml"

// starterConfig is the subset of settings the interactive initializer
// asks about; everything else keeps its built-in default.
type starterConfig struct {
	CacheDir    string `yaml:"cache_dir"`
	BearerToken string `yaml:"bearer_token"`
	TimeRange   string `yaml:"time_range"`
}

// initializeConfig collects the starter settings interactively and
// writes them as YAML. Blank input keeps the shown default. The file
// mode is 0600 since the token may be a literal credential.
func initializeConfig(in io.Reader, out io.Writer, path string) error {
	reader := bufio.NewReader(in)

	cacheDir, err := prompt(reader, out, "Please enter your Cache Directory", "/var/tmp/dropbox")
	if err != nil {
		return err
	}
	token, err := prompt(reader, out, "Please enter your Bearer Token", "")
	if err != nil {
		return err
	}
	timeRange, err := prompt(reader, out, "Please enter the desired time range", "1d")
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(starterConfig{CacheDir: cacheDir, BearerToken: token, TimeRange: timeRange})
	if err != nil {
		return fmt.Errorf("serializing starter config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing starter config %s: %w", path, err)
	}

	fmt.Fprintf(out, "Complete! Written: %s\n", path)
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, label, fallback string) (string, error) {
	if fallback != "" {
		fmt.Fprintf(out, "%s [%s]:\n", label, fallback)
	} else {
		fmt.Fprintf(out, "%s:\n", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback, nil
	}
	return line, nil
}
