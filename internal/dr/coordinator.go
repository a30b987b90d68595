package dr

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the persistence surface the coordinator writes resolved DR values
// through, keyed by album directory path.
type Store interface {
	GetDRValue(albumPath string) (*string, error)
	UpdateDRValue(albumPath string, value *string) error
}

// Coordinator resolves the DR value for an album directory by combining the
// sidecar extractor, the TTL cache, and write-through persistence.
type Coordinator struct {
	extractor *Extractor
	cache     *Cache
	store     Store
	logger    *logrus.Logger
}

// NewCoordinator creates a DR coordinator with the given cache TTL
func NewCoordinator(store Store, cacheTTL time.Duration) *Coordinator {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Coordinator{
		extractor: NewExtractor(),
		cache:     NewCache(cacheTTL),
		store:     store,
		logger:    logger,
	}
}

// Resolve returns the DR value for an album directory, or empty when none of
// its sidecar files carry an official value. When sidecars disagree the
// highest value wins. Found values are written through to the cache and the
// store; absence is never cached so a freshly dropped report is picked up on
// the next resolution.
func (c *Coordinator) Resolve(albumDir string) (string, error) {
	candidates, err := c.extractor.FindCandidateFiles(albumDir)
	if err != nil {
		return "", err
	}

	if len(candidates) == 0 {
		// Sidecars are gone; stale cached or stored values must not survive.
		c.cache.Delete(albumDir)
		if err := c.store.UpdateDRValue(albumDir, nil); err != nil {
			return "", err
		}
		return "", nil
	}

	if value, ok := c.cache.Get(albumDir); ok {
		return value, nil
	}

	best := ""
	for _, candidate := range candidates {
		value, err := c.extractor.ParseFile(candidate)
		if err != nil {
			if errors.Is(err, ErrNoDRValueFound) {
				continue
			}
			c.logger.WithFields(logrus.Fields{
				"file":  candidate,
				"error": err.Error(),
			}).Warn("Failed to parse DR report file")
			continue
		}
		if best == "" || drGreater(value, best) {
			best = value
		}
	}

	if best == "" {
		return "", nil
	}

	c.cache.Set(albumDir, best)
	if err := c.store.UpdateDRValue(albumDir, &best); err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"albumDir": albumDir,
		"drValue":  best,
	}).Debug("Resolved album DR value")

	return best, nil
}

// Invalidate drops any cached value for an album directory
func (c *Coordinator) Invalidate(albumDir string) {
	c.cache.Delete(albumDir)
}

// drGreater compares two normalized DR value strings numerically
func drGreater(a, b string) bool {
	return drNumber(a) > drNumber(b)
}

func drNumber(v string) int {
	n := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}
