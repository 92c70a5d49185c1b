package posedecode

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// poseFile is a parsed pose CSV, indexed [frame][track][coord].
type poseFile struct {
	tracks []string
	coords int
	frames [][][]float32
}

// readPoseFile parses a pose CSV. The header names every column as
// "<track>:<coord>"; tracks are ordered by first appearance and must all
// carry the same number of coordinates. Each following row is one frame.
func readPoseFile(path string) (*poseFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pose file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	pf := &poseFile{}
	trackIdx := make(map[string]int)
	colTrack := make([]int, len(header))
	perTrack := []int{}
	for i, col := range header {
		name, _, ok := strings.Cut(strings.TrimSpace(col), ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: column %q is not named <track>:<coord>", path, col)
		}
		ti, seen := trackIdx[name]
		if !seen {
			ti = len(pf.tracks)
			trackIdx[name] = ti
			pf.tracks = append(pf.tracks, name)
			perTrack = append(perTrack, 0)
		}
		colTrack[i] = ti
		perTrack[ti]++
	}
	pf.coords = perTrack[0]
	for ti, n := range perTrack {
		if n != pf.coords {
			return nil, fmt.Errorf("%s: track %q has %d coords, expected %d", path, pf.tracks[ti], n, pf.coords)
		}
	}

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read row %d: %w", path, row, err)
		}
		frame := make([][]float32, len(pf.tracks))
		for ti := range frame {
			frame[ti] = make([]float32, 0, pf.coords)
		}
		for i, field := range record {
			v, err := parseFloat32(field)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d column %q: %w", path, row, header[i], err)
			}
			frame[colTrack[i]] = append(frame[colTrack[i]], v)
		}
		pf.frames = append(pf.frames, frame)
	}
	return pf, nil
}

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}
