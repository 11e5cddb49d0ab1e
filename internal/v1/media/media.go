// Package media holds the catalog of streams a room can play. Streams are
// HLS directories on disk: the directory name is the slug clients use to
// build playlist URLs, and every *.m3u8 inside is one rendition.
package media

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tmtu/watchroom/internal/v1/protocol"
)

// Metadata is optional display information for a stream, read from a
// metadata.json next to the playlists.
type Metadata struct {
	Title    string `json:"title"`
	Duration string `json:"duration"`
	IMDB     string `json:"imdb"`
}

// Stream is one catalog entry.
type Stream struct {
	Slug       string
	Name       string
	Renditions []protocol.Stream
	Meta       Metadata
}

// Info renders the stream as wire StreamInfo at the given room position.
func (s *Stream) Info(duration float32, state protocol.PlayState) protocol.StreamInfo {
	renditions := make([]protocol.Stream, len(s.Renditions))
	copy(renditions, s.Renditions)
	return protocol.StreamInfo{
		Slug:     s.Slug,
		Name:     s.Name,
		Streams:  renditions,
		Duration: duration,
		State:    state,
	}
}

// Library is the set of streams available for new rooms. Safe for
// concurrent use.
type Library struct {
	mu      sync.RWMutex
	streams map[string]*Stream
	order   []string
}

func NewLibrary() *Library {
	return &Library{streams: make(map[string]*Stream)}
}

// Add registers a stream, replacing any previous entry with the same slug.
func (l *Library) Add(s *Stream) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.streams[s.Slug]; !exists {
		l.order = append(l.order, s.Slug)
	}
	l.streams[s.Slug] = s
}

// Get looks a stream up by slug.
func (l *Library) Get(slug string) (*Stream, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.streams[slug]
	return s, ok
}

// List returns the streams in insertion order.
func (l *Library) List() []*Stream {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Stream, 0, len(l.order))
	for _, slug := range l.order {
		out = append(out, l.streams[slug])
	}
	return out
}

// Len returns the number of streams in the library.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.streams)
}

// LoadDir scans a media directory. Every subdirectory with at least one
// *.m3u8 becomes a stream; playlists are ordered by name and numbered as
// ascending qualities. A metadata.json in the subdirectory fills in display
// info. Subdirectories without playlists are skipped, not an error.
func (l *Library) LoadDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("reading media dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		slug := entry.Name()
		stream, err := loadStreamDir(filepath.Join(path, slug), slug)
		if err != nil {
			return err
		}
		if stream == nil {
			continue
		}
		l.Add(stream)
	}
	return nil
}

func loadStreamDir(dir, slug string) (*Stream, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading stream dir %s: %w", slug, err)
	}

	var playlists []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".m3u8") {
			playlists = append(playlists, entry.Name())
		}
	}
	if len(playlists) == 0 {
		return nil, nil
	}
	sort.Strings(playlists)

	stream := &Stream{Slug: slug, Name: slug}
	for i, playlist := range playlists {
		stream.Renditions = append(stream.Renditions, protocol.Stream{
			Quality:  uint32(i),
			Playlist: playlist,
		})
	}

	metaPath := filepath.Join(dir, "metadata.json")
	if raw, err := os.ReadFile(metaPath); err == nil {
		var meta struct {
			Name string `json:"name"`
			Metadata
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", metaPath, err)
		}
		stream.Meta = meta.Metadata
		if meta.Name != "" {
			stream.Name = meta.Name
		}
	}
	return stream, nil
}

// DemoStream is the stream seeded in development mode so a fresh checkout
// has something to join.
func DemoStream() *Stream {
	return &Stream{
		Slug:       "test2",
		Name:       "Mechazawa",
		Renditions: []protocol.Stream{{Quality: 0, Playlist: "master.m3u8"}},
		Meta: Metadata{
			Title:    "Infernal Affairs II",
			Duration: "1h 15m 2s",
			IMDB:     "https://www.imdb.com/title/tt0369060/",
		},
	}
}
