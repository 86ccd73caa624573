package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gptme-server/internal/domain"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	formalInstruction = "You are a precise, formal assistant. Answer in complete sentences with a professional tone."
	casualInstruction = "You are a friendly, casual assistant. Keep answers short and conversational."
)

// DefaultModels is used when no models file exists.
func DefaultModels() []domain.ModelInfo {
	return []domain.ModelInfo{
		{
			ID:          "gpt-4",
			Label:       "GPT-4",
			Persona:     domain.PersonaFormal,
			Instruction: formalInstruction,
		},
		{
			ID:          "gpt-3.5-turbo",
			Label:       "GPT-3.5 Turbo",
			Persona:     domain.PersonaCasual,
			Instruction: casualInstruction,
		},
	}
}

type modelsFile struct {
	Default string             `yaml:"default"`
	Models  []domain.ModelInfo `yaml:"models"`
}

// ModelCatalogue holds the selectable models. It is safe for concurrent use
// and can be reloaded from its YAML file while the server runs.
type ModelCatalogue struct {
	mu           sync.RWMutex
	models       []domain.ModelInfo
	byID         map[string]domain.ModelInfo
	defaultModel string

	path            string
	fallbackDefault string
	maxTokens       int
	essayTokens     int
	logger          *zap.Logger
	watcher         *fsnotify.Watcher
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// LoadModelCatalogue reads path, or falls back to DefaultModels when the
// file does not exist. defaultModel overrides the file's default when set.
func LoadModelCatalogue(path, defaultModel string, maxTokens, essayTokens int, logger *zap.Logger) (*ModelCatalogue, error) {
	c := &ModelCatalogue{
		path:            path,
		fallbackDefault: defaultModel,
		maxTokens:       maxTokens,
		essayTokens:     essayTokens,
		logger:          logger,
		stopCh:          make(chan struct{}),
	}

	models, def, err := c.read()
	if err != nil {
		return nil, err
	}
	if err := c.swap(models, def); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ModelCatalogue) read() ([]domain.ModelInfo, string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultModels(), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read models file: %w", err)
	}

	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("failed to parse models file: %w", err)
	}
	return f.Models, f.Default, nil
}

func (c *ModelCatalogue) swap(models []domain.ModelInfo, fileDefault string) error {
	if len(models) == 0 {
		return fmt.Errorf("models file %s lists no models", c.path)
	}

	byID := make(map[string]domain.ModelInfo, len(models))
	for i := range models {
		m := &models[i]
		if m.ID == "" {
			return fmt.Errorf("model %d has no id", i)
		}
		if _, dup := byID[m.ID]; dup {
			return fmt.Errorf("model %s listed twice", m.ID)
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		if m.Instruction == "" {
			m.Instruction = formalInstruction
			if m.Persona == domain.PersonaCasual {
				m.Instruction = casualInstruction
			}
		}
		if m.MaxTokens <= 0 {
			m.MaxTokens = c.maxTokens
		}
		if m.EssayTokens <= 0 {
			m.EssayTokens = c.essayTokens
		}
		byID[m.ID] = *m
	}

	def := models[0].ID
	for _, candidate := range []string{c.fallbackDefault, fileDefault} {
		if _, ok := byID[candidate]; ok {
			def = candidate
			break
		}
	}

	c.mu.Lock()
	c.models = models
	c.byID = byID
	c.defaultModel = def
	c.mu.Unlock()
	return nil
}

func (c *ModelCatalogue) Models() []domain.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

func (c *ModelCatalogue) Lookup(id string) (domain.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.byID[id]
	return m, ok
}

func (c *ModelCatalogue) Default() domain.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.byID[c.defaultModel]
}

// Reload re-reads the models file. On error the current catalogue is kept.
func (c *ModelCatalogue) Reload() error {
	models, def, err := c.read()
	if err != nil {
		return err
	}
	return c.swap(models, def)
}

// Watch reloads the catalogue whenever the models file changes. The parent
// directory is watched so editors that replace the file are picked up.
func (c *ModelCatalogue) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	c.watcher = watcher
	go c.watchLoop()

	c.logger.Info("Model catalogue hot reloading enabled", zap.String("path", c.path))
	return nil
}

func (c *ModelCatalogue) watchLoop() {
	defer c.watcher.Close()

	var debounceTimer *time.Timer
	const debounceDelay = 300 * time.Millisecond
	target := filepath.Clean(c.path)

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, func() {
				if err := c.Reload(); err != nil {
					c.logger.Error("Invalid models file after change, keeping previous catalogue",
						zap.String("path", c.path),
						zap.Error(err),
					)
					return
				}
				c.logger.Info("Model catalogue reloaded",
					zap.String("path", c.path),
					zap.Int("models", len(c.Models())),
				)
			})

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("Models file watcher error", zap.Error(err))

		case <-c.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

func (c *ModelCatalogue) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
