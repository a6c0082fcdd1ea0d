//go:build js && wasm

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"syscall/js"
)

// BrowserStore persists into window.localStorage, which the browser scopes to
// the page origin. Keys carry a namespace prefix so Clear leaves foreign keys
// of the same origin alone. An empty namespace uses bare keys and makes Clear
// wipe the whole origin.
type BrowserStore struct {
	storage   js.Value
	namespace string
}

func NewBrowserStore(namespace string) (Store, error) {
	storage := js.Global().Get("localStorage")
	if storage.IsUndefined() || storage.IsNull() {
		return nil, fmt.Errorf("localStorage is not available")
	}
	return &BrowserStore{storage: storage, namespace: namespace}, nil
}

func (s *BrowserStore) prefix() string {
	if s.namespace == "" {
		return ""
	}
	return s.namespace + ":"
}

func (s *BrowserStore) Get(_ context.Context, key string) (value string, ok bool, err error) {
	defer recoverJSError(&err)
	v := s.storage.Call("getItem", s.prefix()+key)
	if v.IsNull() || v.IsUndefined() {
		return "", false, nil
	}
	return v.String(), true, nil
}

func (s *BrowserStore) Set(_ context.Context, key, value string) (err error) {
	defer recoverJSError(&err)
	s.storage.Call("setItem", s.prefix()+key, value)
	return nil
}

func (s *BrowserStore) Remove(_ context.Context, key string) (err error) {
	defer recoverJSError(&err)
	s.storage.Call("removeItem", s.prefix()+key)
	return nil
}

func (s *BrowserStore) Clear(ctx context.Context) (err error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	defer recoverJSError(&err)
	for _, k := range keys {
		s.storage.Call("removeItem", s.prefix()+k)
	}
	return nil
}

func (s *BrowserStore) Keys(_ context.Context) (keys []string, err error) {
	defer recoverJSError(&err)
	n := s.storage.Get("length").Int()
	for i := 0; i < n; i++ {
		k := s.storage.Call("key", i)
		if k.IsNull() {
			continue
		}
		if name, ok := strings.CutPrefix(k.String(), s.prefix()); ok {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BrowserStore) Close() error {
	return nil
}

// recoverJSError turns a thrown DOMException into an error. localStorage
// throws QuotaExceededError when the origin runs out of space.
func recoverJSError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	jsErr, ok := r.(js.Error)
	if !ok {
		panic(r)
	}
	if name := jsErr.Value.Get("name"); name.Type() == js.TypeString && name.String() == "QuotaExceededError" {
		*err = fmt.Errorf("%s: %w", jsErr.Error(), ErrQuotaExceeded)
		return
	}
	*err = fmt.Errorf("localStorage: %w", jsErr)
}
