// Package seed loads the initial demo state the stores start with.
package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chimera-protocol/chimera/apps/state/internal/models"
	"github.com/chimera-protocol/chimera/apps/state/internal/store"
)

//go:embed default.yaml
var defaultFixture []byte

// Fixture is the full initial state. Conversations go to the in-process
// conversation backend, everything else straight into its store.
type Fixture struct {
	Workspaces    []models.Workspace    `yaml:"workspaces"`
	Memories      []models.Memory       `yaml:"memories"`
	Integrations  []models.Integration  `yaml:"integrations"`
	Conversations []models.Conversation `yaml:"conversations"`
}

// ConversationSeeder accepts fixture conversations.
type ConversationSeeder interface {
	Seed(models.Conversation)
}

// Default returns the bundled demo fixture.
func Default() (*Fixture, error) {
	return Parse(bytes.NewReader(defaultFixture))
}

// Load reads path, or the bundled fixture when path is empty.
func Load(path string) (*Fixture, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &fx, nil
}

// validate rejects missing and duplicate ids. References between entities are
// not checked; dangling ones are legal state.
func (fx *Fixture) validate() error {
	if err := uniqueIDs("workspace", len(fx.Workspaces), func(i int) string { return fx.Workspaces[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("memory", len(fx.Memories), func(i int) string { return fx.Memories[i].ID }); err != nil {
		return err
	}
	if err := uniqueIDs("conversation", len(fx.Conversations), func(i int) string { return fx.Conversations[i].ID }); err != nil {
		return err
	}
	providers := make(map[models.Provider]bool)
	for _, in := range fx.Integrations {
		if !in.Provider.IsValid() {
			return fmt.Errorf("integration %s: unknown provider %q", in.ID, in.Provider)
		}
		if !in.Status.IsValid() {
			return fmt.Errorf("integration %s: unknown status %q", in.ID, in.Status)
		}
		if providers[in.Provider] {
			return fmt.Errorf("duplicate integration for provider %s", in.Provider)
		}
		providers[in.Provider] = true
	}
	for _, c := range fx.Conversations {
		for _, m := range c.Messages {
			if !m.Role.IsValid() {
				return fmt.Errorf("conversation %s message %s: unknown role %q", c.ID, m.ID, m.Role)
			}
		}
	}
	return nil
}

func uniqueIDs(kind string, n int, id func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return fmt.Errorf("%s #%d has no id", kind, i)
		}
		if seen[v] {
			return fmt.Errorf("duplicate %s id %q", kind, v)
		}
		seen[v] = true
	}
	return nil
}

// Apply loads the fixture into the stores. conv may be nil when conversations
// live in a remote service.
func (fx *Fixture) Apply(ws *store.WorkspaceStore, ms *store.MemoryStore, is *store.IntegrationStore, conv ConversationSeeder) {
	ws.Load(fx.Workspaces)
	ms.Load(fx.Memories)
	is.Load(fx.Integrations)
	if conv == nil {
		return
	}
	for _, c := range fx.Conversations {
		conv.Seed(c)
	}
}
