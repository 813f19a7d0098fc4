package detector

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LoadLabels reads one label per line; the line number is the class id.
// Blank lines keep their id so the file stays aligned with the model.
func LoadLabels(file string) (map[int]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening labels file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	names := make(map[int]string)

	id := 0
	for scanner.Scan() {
		names[id] = cleanLabel(scanner.Text())
		id++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", file)
	}

	return names, nil
}

var namesEntry = regexp.MustCompile(`(\d+)\s*:\s*(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)

// ParseNamesMetadata parses the "names" entry that ultralytics writes into
// exported models, e.g. {0: 'person', 1: 'bicycle'}.
func ParseNamesMetadata(raw string) (map[int]string, error) {
	matches := namesEntry.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no class names found in metadata %q", raw)
	}

	names := make(map[int]string, len(matches))
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q: %w", m[1], err)
		}
		name := m[2]
		if name == "" {
			name = m[3]
		}
		names[id] = cleanLabel(name)
	}

	return names, nil
}

// cleanLabel trims a label and puts it in NFC so that labels typed on
// different systems compare equal.
func cleanLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// COCONames returns the 80 COCO labels used by the stock YOLO checkpoints.
func COCONames() map[int]string {
	names := make(map[int]string, len(cocoLabels))
	for i, label := range cocoLabels {
		names[i] = label
	}
	return names
}

var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}
