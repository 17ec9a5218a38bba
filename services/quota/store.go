// Package quota enforces per-minute request and token limits through a
// shared counter store. Admission is one atomic check-and-charge operation
// so that concurrent requests for the same scope can never over-admit, no
// matter how many gateway instances share the store.
package quota

import "context"

// DefaultWindow is the counting window for both RPM and TPM counters.
const DefaultWindow = 60 // seconds

// Counts is the store-side outcome of one admission attempt. RPM reflects
// the counter after the increment when admitted, the pre-check value when
// rejected.
type Counts struct {
	Admitted     bool
	RPM          int
	TPM          int
	ResetSeconds int
}

// CounterStore is the atomic counter backend. Implementations must make
// Admit a single linearizable read-check-increment: a plain read followed
// by a write re-introduces the over-admission race this interface exists
// to prevent.
type CounterStore interface {
	// Admit checks both counters against their caps and charges one
	// request when within limits. A cap of zero means uncapped.
	Admit(ctx context.Context, scope string, maxRPM, maxTPM int) (Counts, error)

	// AddTokens charges consumed tokens against the scope's TPM counter.
	// Called after completion, once the real token count is known.
	AddTokens(ctx context.Context, scope string, tokens int) error
}

// TenantScope builds the counter scope for a tenant key.
func TenantScope(key string) string {
	return "tenant:" + key
}

// ProviderScope builds the counter scope for provider-side capacity.
func ProviderScope(name string) string {
	return "provider:" + name
}

func rpmKey(scope string) string {
	return "quota:" + scope + ":rpm"
}

func tpmKey(scope string) string {
	return "quota:" + scope + ":tpm"
}
