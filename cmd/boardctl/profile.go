package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"taskboard-api/internal/models"
)

const defaultRefresh = 30 * time.Second

// Profile is the saved boardctl session.
type Profile struct {
	Server  string        `yaml:"server"`
	Token   string        `yaml:"token,omitempty"`
	UserID  string        `yaml:"user_id,omitempty"`
	Role    string        `yaml:"role,omitempty"`
	Refresh time.Duration `yaml:"refresh,omitempty"`
}

func defaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "boardctl.yaml"
	}
	return filepath.Join(dir, "boardctl", "profile.yaml")
}

// LoadProfile reads path. A missing file yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	p := Profile{Server: "http://localhost:8008", Refresh: defaultRefresh}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.Refresh <= 0 {
		p.Refresh = defaultRefresh
	}
	return p, nil
}

func (p Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Session returns the identity stored by login.
func (p Profile) Session() (string, models.Role, error) {
	if p.Token == "" || p.UserID == "" {
		return "", 0, errors.New("not logged in; run boardctl login")
	}
	role, err := models.ParseRole(p.Role)
	if err != nil {
		return "", 0, fmt.Errorf("profile role: %w", err)
	}
	return p.UserID, role, nil
}
