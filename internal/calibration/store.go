package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists named calibration configs as JSON files under dataDir.
type Store struct {
	dataDir string
}

// NewStore creates a new calibration store
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// Load reads the config saved under name. A missing file yields DefaultConfig.
func (s *Store) Load(name string) (Config, error) {
	filePath := s.path(name)

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode calibration data: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid calibration %q: %w", name, err)
	}

	return cfg, nil
}

// Save writes cfg under name, creating the data directory when needed.
func (s *Store) Save(name string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid calibration: %w", err)
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}

	// write-then-rename so a concurrent Load never sees a partial file
	tmp, err := os.CreateTemp(s.dataDir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create calibration file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode calibration data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush calibration file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("failed to install calibration file: %w", err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s.json", name))
}
