package cmd

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ChrisMcGann/msalign/internal/logger"
	"github.com/ChrisMcGann/msalign/pkg/core"
	"github.com/ChrisMcGann/msalign/pkg/project"
)

// customModsFile is picked up from the working directory when no
// modification CSV is configured.
const customModsFile = "unimod_custom.csv"

// loadModDB returns the built-in modification table extended by path.
func loadModDB(path string) (*core.ModDatabase, error) {
	modDB := core.DefaultModDatabase()
	if path == "" {
		if _, err := os.Stat(customModsFile); err != nil {
			return modDB, nil
		}
		if err := readModsCSV(modDB, customModsFile); err != nil {
			logger.Logger.Warnw("Failed to load custom modifications", "file", customModsFile, "error", err)
		}
		return modDB, nil
	}
	if err := readModsCSV(modDB, path); err != nil {
		return nil, err
	}
	return modDB, nil
}

func readModsCSV(modDB *core.ModDatabase, path string) error {
	r, err := project.OpenReader(path)
	if err != nil {
		return errors.Wrap(err, "open modifications")
	}
	defer r.Close()
	return errors.Wrapf(modDB.LoadFromCSV(r), "load modifications %s", path)
}

func loadMassOffsetCSV(path string) (map[string]float64, error) {
	return loadKeyedCSV(path, "massOffset", func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

func loadCompoundClassCSV(path string) (map[string]string, error) {
	return loadKeyedCSV(path, "CompoundClass", func(v string) (string, error) {
		return v, nil
	})
}

// loadKeyedCSV reads "key,value" rows after a header line.
func loadKeyedCSV[T any](path, valueName string, parse func(string) (T, error)) (map[string]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open file")
	}
	defer file.Close()
	return readKeyedCSV(file, valueName, parse)
}

func readKeyedCSV[T any](r io.Reader, valueName string, parse func(string) (T, error)) (map[string]T, error) {
	result := make(map[string]T)
	scanner := bufio.NewScanner(r)

	// header
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			return nil, errors.Newf("line %d: expected 2 fields (key,%s), got %d", lineNum, valueName, len(parts))
		}

		key := strings.TrimSpace(parts[0])
		raw := strings.TrimSpace(parts[1])
		value, err := parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: invalid %s value '%s'", lineNum, valueName, raw)
		}
		result[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read CSV")
	}
	return result, nil
}
