package detect

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line.
func LoadLabels(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()

	// create a scanner to read the file.
	scanner := bufio.NewScanner(f)

	var labels []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		labels = append(labels, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return labels, nil
}

// LoadLabelsYAML reads the labels from a dataset yaml file containing a
// "names" entry, given either as a list of labels or as a map of class
// index to label as used by Ultralytics dataset files.
func LoadLabelsYAML(file string) ([]string, error) {

	data, err := os.ReadFile(file)

	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	var doc struct {
		Names yaml.Node `yaml:"names"`
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing yaml: %w", err)
	}

	switch doc.Names.Kind {

	case yaml.SequenceNode:
		var labels []string

		if err := doc.Names.Decode(&labels); err != nil {
			return nil, fmt.Errorf("error decoding names list: %w", err)
		}

		return labels, nil

	case yaml.MappingNode:
		var byIndex map[int]string

		if err := doc.Names.Decode(&byIndex); err != nil {
			return nil, fmt.Errorf("error decoding names map: %w", err)
		}

		// size the label set by the highest class index present
		maxIndex := -1

		for idx := range byIndex {
			if idx > maxIndex {
				maxIndex = idx
			}
		}

		labels := make([]string, maxIndex+1)

		for idx, name := range byIndex {
			if idx >= 0 {
				labels[idx] = name
			}
		}

		return labels, nil
	}

	return nil, fmt.Errorf("no names entry found in %s", file)
}

// LabelFor returns the label of a class index, falling back to the numeric
// index when the label set does not cover it
func LabelFor(labels []string, class int) string {

	if class >= 0 && class < len(labels) {
		return labels[class]
	}

	return strconv.Itoa(class)
}
