// Package headers holds the unstandard request headers the storefront expects
// on every API call, with validation of the values that carry semantics.
package headers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Key identifies one unstandard header.
type Key string

const (
	City         Key = "city"
	Language     Key = "language"
	AuthKey      Key = "auth-key"
	DeliveryType Key = "delivery-type"
	StoreID      Key = "store-id"
	ClientRoute  Key = "client-route"
)

// Keys lists every known key in wire order.
var Keys = []Key{City, Language, AuthKey, DeliveryType, StoreID, ClientRoute}

var wireNames = map[Key]string{
	City:         "x-city",
	Language:     "x-language",
	AuthKey:      "x-key",
	DeliveryType: "x-delivery-type",
	StoreID:      "x-store-id",
	ClientRoute:  "x-client-route",
}

// Wire returns the HTTP header name for k.
func (k Key) Wire() string {
	return wireNames[k]
}

// KeyForWire maps an HTTP header name (any case) back to its key.
func KeyForWire(name string) (Key, bool) {
	name = strings.ToLower(name)
	for k, w := range wireNames {
		if w == name {
			return k, true
		}
	}
	return "", false
}

// Delivery modes accepted for the delivery-type header.
const (
	DeliveryStore   = "store"
	DeliveryPickup  = "pickup"
	DeliveryCourier = "courier"
)

// ErrValidation is returned for every rejected header value.
// Check with errors.Is(err, headers.ErrValidation).
var ErrValidation = errors.New("validation error")

// rules are validator tags applied to the normalized value of each key.
var rules = map[Key]string{
	Language:     "len=2|len=5",
	DeliveryType: "oneof=store pickup courier",
	AuthKey:      "required",
	StoreID:      "required",
	ClientRoute:  "required",
}

// Store is the mutable header state of one client session.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	values   map[Key]string
	validate *validator.Validate
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		values:   make(map[Key]string),
		validate: validator.New(),
	}
}

// Get returns the value of k and whether it is set.
func (s *Store) Get(k Key) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	return v, ok
}

// Set validates and stores value under k. On error the previous value is kept.
// The auth key cannot be set this way; it is owned by the warm-up.
func (s *Store) Set(k Key, value string) error {
	if k == AuthKey {
		return fmt.Errorf("%w: %s is read-only", ErrValidation, k)
	}
	v, err := s.normalize(k, value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[k] = v
	s.mu.Unlock()
	return nil
}

// SetAuthKey stores the anti-bot token captured during warm-up.
func (s *Store) SetAuthKey(token string) error {
	v, err := s.normalize(AuthKey, token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[AuthKey] = v
	s.mu.Unlock()
	return nil
}

// AdoptIfUnset stores value under k only if k has no value yet.
// It reports whether the value was adopted. The check and the write happen
// under one lock, so among concurrent callers at most one wins.
func (s *Store) AdoptIfUnset(k Key, value string) (bool, error) {
	v, err := s.normalize(k, value)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[k]; ok {
		return false, nil
	}
	s.values[k] = v
	return true, nil
}

// Clear removes k.
func (s *Store) Clear(k Key) {
	s.mu.Lock()
	delete(s.values, k)
	s.mu.Unlock()
}

// Snapshot returns the set values keyed by wire header name.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k.Wire()] = v
	}
	return out
}

// CityID returns the numeric city id.
func (s *Store) CityID() (int, bool) {
	v, ok := s.Get(City)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SetCityID stores id as the city header.
func (s *Store) SetCityID(id int) error {
	return s.Set(City, strconv.Itoa(id))
}

// Language returns the language tag.
func (s *Store) Language() (string, bool) { return s.Get(Language) }

// SetLanguage stores a language tag.
func (s *Store) SetLanguage(tag string) error { return s.Set(Language, tag) }

// DeliveryType returns the delivery mode.
func (s *Store) DeliveryType() (string, bool) { return s.Get(DeliveryType) }

// SetDeliveryType stores the delivery mode.
func (s *Store) SetDeliveryType(m string) error { return s.Set(DeliveryType, m) }

// StoreID returns the pick-up store id.
func (s *Store) StoreID() (string, bool) { return s.Get(StoreID) }

// SetStoreID stores the pick-up store id.
func (s *Store) SetStoreID(id string) error { return s.Set(StoreID, id) }

// ClientRoute returns the storefront route.
func (s *Store) ClientRoute() (string, bool) { return s.Get(ClientRoute) }

// SetClientRoute stores the storefront route.
func (s *Store) SetClientRoute(r string) error { return s.Set(ClientRoute, r) }

// AuthKey returns the captured token.
func (s *Store) AuthKey() (string, bool) { return s.Get(AuthKey) }

// normalize validates value for k and returns the form to store.
func (s *Store) normalize(k Key, value string) (string, error) {
	if _, known := wireNames[k]; !known {
		return "", fmt.Errorf("%w: unknown header key %q", ErrValidation, k)
	}

	if k == City {
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("%w: %s %q is not an integer", ErrValidation, k, value)
		}
		if err := s.validate.Var(id, "gte=1"); err != nil {
			return "", fmt.Errorf("%w: %s %q %s", ErrValidation, k, value, formatValidationError(err))
		}
		return strconv.Itoa(id), nil
	}

	if err := s.validate.Var(value, rules[k]); err != nil {
		return "", fmt.Errorf("%w: %s %q %s", ErrValidation, k, value, formatValidationError(err))
	}
	return value, nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return "must not be empty"
	case "gte":
		return "must be at least " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return fmt.Sprintf("failed %s validation", e.Tag())
	}
}
