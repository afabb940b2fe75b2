package prefs

import (
	"encoding/json"
	"os"
	"sync"

	"example.com/socialfeed/internal/logger"
)

var logg = logger.New()

// premiumKey is the fixed name the preference is stored under.
const premiumKey = "premiumMode"

// Store holds the process-local display preferences, persisted to a small
// JSON file and broadcast to subscribers on change so every open feed view
// observes a toggle without shared globals.
type Store struct {
	mu      sync.Mutex
	path    string
	premium bool
	subs    []chan bool
}

// Load reads the preference file, defaulting to premium off when the file
// is missing or unreadable.
func Load(path string) *Store {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logg.Error("prefs", "Failed to read preference file", err)
		}
		return s
	}

	var saved map[string]bool
	if err := json.Unmarshal(data, &saved); err != nil {
		logg.Error("prefs", "Invalid preference file, using defaults", err)
		return s
	}
	s.premium = saved[premiumKey]
	return s
}

// Premium reports whether ad placeholders are suppressed.
func (s *Store) Premium() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.premium
}

// SetPremium persists the flag and notifies all subscribers.
func (s *Store) SetPremium(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.premium == v {
		return nil
	}
	s.premium = v

	data, err := json.Marshal(map[string]bool{premiumKey: v})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		logg.Error("prefs", "Failed to persist preference file", err)
		return err
	}

	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// subscriber has not drained the previous change; skip
		}
	}
	return nil
}

// Subscribe returns a channel receiving every premium-mode change. The
// channel is buffered; a slow subscriber misses intermediate values but
// can always re-read Premium().
func (s *Store) Subscribe() <-chan bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan bool, 1)
	s.subs = append(s.subs, ch)
	return ch
}
