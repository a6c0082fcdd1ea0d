package commandstructure

import (
	"fmt"
	"sort"
)

// CommandRegistry maps command names to their factories
type CommandRegistry struct {
	factories map[string]CommandFactory
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		factories: make(map[string]CommandFactory),
	}
}

// Register adds a command factory to the registry
func (r *CommandRegistry) Register(name string, factory CommandFactory) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("command factory cannot be nil")
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates a command by name with the given parameters
func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create command %s: %w", name, err)
	}

	return command, nil
}

// CreateAll instantiates every configured command in order
func (r *CommandRegistry) CreateAll(configs []CommandConfig) ([]Command, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := r.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("command at index %d: %w", i, err)
		}
		commands = append(commands, command)
	}
	return commands, nil
}

func (r *CommandRegistry) IsRegistered(name string) bool {
	_, exists := r.factories[name]
	return exists
}

// GetRegisteredNames returns all registered command names in sorted order
func (r *CommandRegistry) GetRegisteredNames() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the commands registered by the commands package
var DefaultRegistry = NewCommandRegistry()
