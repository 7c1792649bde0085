package itemmodel

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/kass/go-geo-tiler/pkg/models"
)

// Dataset is the serializable form of a model and its selection
type Dataset struct {
	Items    []models.Item   `json:"items"`
	Selected []models.ItemID `json:"selected"`
	Count    int             `json:"count"`
}

// SaveToFile writes the rows and the selection to a gob file
func SaveToFile(filename string, m *Model, sel *Selection) error {
	data := Dataset{
		Items: m.Items(),
		Count: m.RowCount(),
	}
	if sel != nil {
		data.Selected = sel.SelectedItems()
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// LoadFromFile reads a dataset written by SaveToFile
func LoadFromFile(filename string) (*Model, *Selection, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data Dataset
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("failed to decode data: %w", err)
	}
	if data.Count != len(data.Items) {
		return nil, nil, fmt.Errorf("corrupt dataset: %d items, header says %d", len(data.Items), data.Count)
	}

	m, err := NewModel(data.Items...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load items: %w", err)
	}
	sel := NewSelection()
	for _, id := range data.Selected {
		if _, ok := m.Item(id); ok {
			sel.selected[id] = struct{}{}
		}
	}
	return m, sel, nil
}
