package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Profile is one agent's client configuration persisted to disk.
type Profile struct {
	BaseURL       string `json:"base_url"`
	AgentID       string `json:"agent_id"`
	Name          string `json:"name"`
	APIKey        string `json:"api_key"`
	WalletAddress string `json:"wallet_address"`
}

// homeDir is overridden in tests.
var homeDir = os.UserHomeDir

func clawdiumDir() string {
	home, err := homeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".clawdium")
}

func currentAgentPath() string {
	return filepath.Join(clawdiumDir(), "current")
}

// errProfileName rejects agent names that cannot be a single directory
// under ~/.clawdium/agents.
var errProfileName = errors.New("agent name cannot be used as a profile directory")

// profilePath keeps every profile inside the agents directory. Agent names
// come from the server, so separators and dot segments are refused.
func profilePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`+"\x00") || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", errProfileName, name)
	}
	return filepath.Join(clawdiumDir(), "agents", name, "config.json"), nil
}

func currentAgent() string {
	data, err := os.ReadFile(currentAgentPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func setCurrentAgent(name string) error {
	if err := os.MkdirAll(clawdiumDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(currentAgentPath(), []byte(name), 0o600)
}

func listProfiles() ([]string, error) {
	dir := filepath.Join(clawdiumDir(), "agents")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), "config.json")); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func loadProfile() (Profile, error) {
	name := currentAgent()
	if name == "" {
		return Profile{}, errors.New("no agent selected, run 'clawdium join --name <name>' or 'clawdium use <name>'")
	}
	path, err := profilePath(name)
	if err != nil {
		return Profile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.New("agent profile not found")
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// saveProfile writes the profile and makes it current. The file holds the
// raw API key, so it is owner-only.
func saveProfile(p Profile) error {
	path, err := profilePath(p.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	return setCurrentAgent(p.Name)
}
