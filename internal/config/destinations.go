package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseDestinations reads exactly count "host port" entries from r. Lines
// starting with '#' and blank lines are skipped; reading stops once count
// entries have been collected.
func ParseDestinations(r io.Reader, count int) ([]Destination, error) {
	if count < 1 || count > MaxDestinations {
		return nil, fmt.Errorf("%w: invalid server count (max %d)", ErrInvalidConfig, MaxDestinations)
	}

	var dests []Destination
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() && len(dests) < count {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: expected \"host port\"", ErrInvalidConfig, lineNo)
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad port %q", ErrInvalidConfig, lineNo, fields[1])
		}
		dests = append(dests, Destination{Host: fields[0], Port: port})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read destinations: %w", err)
	}

	if len(dests) != count {
		return nil, fmt.Errorf("%w: expected %d servers, found %d", ErrInvalidConfig, count, len(dests))
	}
	return dests, nil
}

// LoadDestinations opens path and parses it with ParseDestinations.
func LoadDestinations(path string, count int) ([]Destination, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server list: %w", err)
	}
	defer f.Close()
	return ParseDestinations(f, count)
}
