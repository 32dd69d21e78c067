package modulemanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// freshRegistry swaps in an empty registry for one test
func freshRegistry(t *testing.T) {
	t.Helper()
	old := reg
	reg = &registry{byID: make(map[string]Module)}
	t.Cleanup(func() { reg = old })
}

type fakeModule struct {
	id       string
	core     bool
	events   *[]string
	migrated bool
	inited   bool
	routed   bool
}

func (f *fakeModule) ID() string   { return f.id }
func (f *fakeModule) Name() string { return f.id }
func (f *fakeModule) Core() bool   { return f.core }

func (f *fakeModule) Migrate(db *gorm.DB) error {
	f.migrated = true
	*f.events = append(*f.events, "migrate:"+f.id)
	return nil
}

func (f *fakeModule) Init() error {
	f.inited = true
	*f.events = append(*f.events, "init:"+f.id)
	return nil
}

func (f *fakeModule) RegisterRoutes(router *gin.Engine) {
	f.routed = true
}

func TestLoadAllRunsInRegistrationOrder(t *testing.T) {
	freshRegistry(t)
	var events []string

	Register(&fakeModule{id: "system.library", events: &events})
	Register(&fakeModule{id: "system.import", events: &events})

	require.NoError(t, LoadAll(nil))
	assert.Equal(t, []string{
		"migrate:system.library", "init:system.library",
		"migrate:system.import", "init:system.import",
	}, events)
}

func TestRegisterIgnoresDuplicateID(t *testing.T) {
	freshRegistry(t)
	var events []string

	first := &fakeModule{id: "system.library", events: &events}
	Register(first)
	Register(&fakeModule{id: "system.library", events: &events})

	modules := ListModules()
	require.Len(t, modules, 1)
	assert.Same(t, first, modules[0])
}

func TestDisabledModuleIsSkipped(t *testing.T) {
	freshRegistry(t)
	var events []string

	path := filepath.Join(t.TempDir(), "modules.yml")
	require.NoError(t, os.WriteFile(path, []byte("disabled:\n  - extras.reports\n"), 0o644))
	t.Setenv("DESIGNVAULT_MODULES_FILE", path)

	kept := &fakeModule{id: "system.library", core: true, events: &events}
	skipped := &fakeModule{id: "extras.reports", events: &events}
	Register(kept)
	Register(skipped)

	require.NoError(t, LoadAll(nil))
	assert.True(t, kept.inited)
	assert.False(t, skipped.migrated)
	assert.False(t, skipped.inited)
}

func TestDisablingCoreModuleFails(t *testing.T) {
	freshRegistry(t)
	var events []string

	path := filepath.Join(t.TempDir(), "modules.yml")
	require.NoError(t, os.WriteFile(path, []byte("disabled:\n  - system.import\n"), 0o644))
	t.Setenv("DESIGNVAULT_MODULES_FILE", path)

	Register(&fakeModule{id: "system.import", core: true, events: &events})

	err := LoadAll(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core module")
}

func TestRegisterRoutesVisitsEveryModule(t *testing.T) {
	freshRegistry(t)
	var events []string

	a := &fakeModule{id: "a", events: &events}
	b := &fakeModule{id: "b", events: &events}
	Register(a)
	Register(b)

	gin.SetMode(gin.TestMode)
	RegisterRoutes(gin.New())
	assert.True(t, a.routed)
	assert.True(t, b.routed)
}
