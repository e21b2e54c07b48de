package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenBlenderCore/internal/types"
)

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load sucht <name>.json in den Suchpfaden, validiert und cached das Profil
func (l *ProfileLoader) Load(name string) (*types.IOProfile, error) {
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*types.IOProfile), nil
	}

	var data []byte
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".json")
		content, err := os.ReadFile(fullPath)
		if err == nil {
			data = content
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("profile not found: %s (searched in: %v)", name, l.searchPaths)
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile types.IOProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	if err := l.validator.ValidateBindings(&profile); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	l.cache.Store(name, &profile)

	return &profile, nil
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
