// Package meta loads job definitions from any afs-supported location (file,
// embed, s3, gs, http) with an in-memory byte cache and ${env.KEY} expansion.
package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service resolves and caches raw job definition documents.
type Service struct {
	fs        afs.Service
	baseURL   string
	fsOptions []storage.Option

	mux   sync.RWMutex
	cache map[string][]byte
}

// New creates a meta service rooted at baseURL; relative locations are
// resolved against it.
func New(fs afs.Service, baseURL string, fsOptions ...storage.Option) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{
		fs:        fs,
		baseURL:   baseURL,
		fsOptions: fsOptions,
		cache:     map[string][]byte{},
	}
}

// Load downloads (or serves from cache) the document at location, expands
// ${env.KEY} expressions and decodes the YAML into target.
func (s *Service) Load(ctx context.Context, location string, target interface{}) error {
	data, err := s.Download(ctx, location)
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", location, err)
	}
	return nil
}

// Download returns the raw, env-expanded document bytes.
func (s *Service) Download(ctx context.Context, location string) ([]byte, error) {
	URL := s.resolve(location)

	s.mux.RLock()
	cached, ok := s.cache[URL]
	s.mux.RUnlock()
	if ok {
		return cached, nil
	}

	data, err := s.fs.DownloadWithURL(ctx, URL, s.fsOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", URL, err)
	}
	data = []byte(expandEnvExpr(string(data)))

	s.mux.Lock()
	s.cache[URL] = data
	s.mux.Unlock()
	return data, nil
}

// Refresh discards the cached copy of the document at location so that the
// next Load issues one extra round-trip.
func (s *Service) Refresh(location string) {
	URL := s.resolve(location)
	s.mux.Lock()
	delete(s.cache, URL)
	s.mux.Unlock()
}

func (s *Service) resolve(location string) string {
	if filepath.Ext(location) == "" {
		location += ".yaml"
	}
	if s.baseURL != "" && url.IsRelative(location) {
		return url.Join(s.baseURL, location)
	}
	return location
}
