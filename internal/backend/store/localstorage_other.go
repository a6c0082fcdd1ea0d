//go:build !(js && wasm)

package store

import "fmt"

// NewBrowserStore is only available in the WebAssembly build.
func NewBrowserStore(namespace string) (Store, error) {
	return nil, fmt.Errorf("browser store %q requires a js/wasm build", namespace)
}
