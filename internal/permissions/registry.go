package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a permission code known to the suite. Guards reject
// codes that are unknown or disabled, so a typo in a route declaration fails
// closed instead of silently granting access.
type Permission struct {
	Code        string
	Module      string
	Description string
	Enabled     bool
}

type permissionRegistry struct {
	mu          sync.RWMutex
	permissions map[string]*Permission
}

var globalRegistry = &permissionRegistry{
	permissions: make(map[string]*Permission),
}

var (
	// ErrUnknownPermission marks a permission code nothing ever registered.
	ErrUnknownPermission = errors.New("permission: unknown code")
	// ErrPermissionDisabled marks a registered code that has been switched off.
	ErrPermissionDisabled = errors.New("permission: code disabled")

	errNilPermission = errors.New("permission: nil definition")
	errEmptyCode     = errors.New("permission: code is required")
	errDuplicateCode = errors.New("permission: already registered")
)

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	code := strings.TrimSpace(perm.Code)
	if code == "" {
		return errEmptyCode
	}

	def := *perm
	def.Code = code
	def.Module = strings.TrimSpace(def.Module)

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.permissions[code]; exists {
		return fmt.Errorf("%w: %s", errDuplicateCode, code)
	}

	globalRegistry.permissions[code] = &def
	return nil
}

// Get returns a copy of the permission definition when registered.
func Get(code string) (*Permission, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[code]
	if !ok {
		return nil, false
	}
	cp := *perm
	return &cp, true
}

// GetAll returns a copy of every registered permission keyed by code.
func GetAll() map[string]*Permission {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	out := make(map[string]*Permission, len(globalRegistry.permissions))
	for code, perm := range globalRegistry.permissions {
		cp := *perm
		out[code] = &cp
	}
	return out
}

// Codes returns every registered permission code in sorted order.
func Codes() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	codes := make([]string, 0, len(globalRegistry.permissions))
	for code := range globalRegistry.permissions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// SetEnabled toggles a registered permission code at runtime. Disabling a
// code makes every route requiring it deny uniformly.
func SetEnabled(code string, enabled bool) error {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	perm, ok := globalRegistry.permissions[strings.TrimSpace(code)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, code)
	}
	perm.Enabled = enabled
	return nil
}

// Validate reports whether a code is registered and enabled.
func Validate(code string) error {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	perm, ok := globalRegistry.permissions[strings.TrimSpace(code)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, code)
	}
	if !perm.Enabled {
		return fmt.Errorf("%w: %s", ErrPermissionDisabled, code)
	}
	return nil
}
